// Command roomcli joins a game room from the terminal. Plain lines are spoken
// in character; lines starting with a slash are commands (see /help).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/DoyleJ11/gameroom/internal/logging"
	"github.com/DoyleJ11/gameroom/pkg/client"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

const help = `commands:
  /pass                     pass your turn
  /hold [trigger]           hold until trigger, or to the end of the round
  /release <actor>          bring a held actor back in now
  /start                    start combat (host)
  /next                     advance the turn (host)
  /end                      end combat (host)
  /me <text>                describe what your character does
  /list                     show pending suggestions
  /confirm <id> [n]         confirm a suggestion, optionally candidate n
  /cancel <id>              cancel a suggestion
  /edit <id> <text>         re-phrase a suggestion before confirming it
  /state                    print the room
  /kick <participant>       remove someone (host)
  /endgame                  end the game for everyone (host)
  /leave                    leave the room
  /quit                     disconnect without leaving`

func main() {
	base := flag.String("server", envOr("GAMEROOM_SERVER", "http://localhost:8080"), "room server address")
	code := flag.String("room", "", "room code; a new public room is created when empty")
	name := flag.String("name", envOr("USER", "adventurer"), "display name")
	actor := flag.String("actor", "", "actor id to control")
	participant := flag.String("participant", "", "participant id to rejoin as")
	verbose := flag.Bool("v", false, "log connection details")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *code == "" {
		*code, err = client.NewGateway(*base, "").CreateRoom(ctx, domain.VisibilityPublic)
		if err != nil {
			log.Fatalf("create room: %v", err)
		}
		fmt.Printf("created room %s\n", *code)
	}

	s, err := client.Open(ctx, client.Config{
		BaseURL:       *base,
		RoomCode:      *code,
		ParticipantID: *participant,
		Name:          *name,
		ActorID:       *actor,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("open session: %v", err)
	}
	defer s.Close()
	fmt.Printf("joining %s as %s (participant %s); /help for commands\n", *code, *name, s.ParticipantID())

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for u := range s.Updates() {
			printUpdate(os.Stdout, u)
			if u.Kind == client.UpdateExit {
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-exited:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := dispatch(s, strings.TrimSpace(line))
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func dispatch(s *client.Session, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.Say(line)
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "help":
		fmt.Println(help)
	case "pass":
		return false, s.Pass()
	case "hold":
		return false, s.Hold(rest, "")
	case "release":
		return false, s.ReleaseHold(rest)
	case "start":
		return false, s.StartCombat()
	case "next":
		return false, s.NextTurn()
	case "end":
		return false, s.EndCombat()
	case "me":
		return false, s.Emote(rest)
	case "list":
		snap, err := s.State()
		if err != nil {
			return false, err
		}
		for _, p := range snap.Suggestions {
			fmt.Printf("  %s [%s] %q -> %s\n", p.ID, p.State, p.Text, describeCandidates(p))
		}
	case "confirm":
		id, n, _ := strings.Cut(rest, " ")
		candidate := 0
		if n != "" {
			if candidate, err = strconv.Atoi(n); err != nil {
				return false, fmt.Errorf("candidate must be a number: %w", err)
			}
		}
		return false, s.Confirm(id, candidate)
	case "cancel":
		return false, s.Cancel(rest)
	case "edit":
		id, text, _ := strings.Cut(rest, " ")
		if err := s.BeginEdit(id); err != nil {
			return false, err
		}
		a, err := s.SaveEdit(id, text)
		if err != nil {
			return false, fmt.Errorf("%w; still editing, try /edit again", err)
		}
		fmt.Printf("  %s now reads %s\n", id, describeAction(a))
	case "state":
		snap, err := s.State()
		if err != nil {
			return false, err
		}
		printRoom(os.Stdout, snap)
	case "kick":
		return false, s.Kick(rest)
	case "endgame":
		return false, s.EndGame()
	case "leave":
		return true, s.Leave()
	case "quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command /%s", cmd)
	}
	return false, nil
}

func printUpdate(w io.Writer, u client.Update) {
	switch u.Kind {
	case client.UpdateConnection:
		switch {
		case u.Wait > 0:
			fmt.Fprintf(w, "* reconnecting in %s (attempt %d)\n", u.Wait, u.Attempt)
		case u.State == client.StateOpen:
			fmt.Fprintln(w, "* connected")
		default:
			fmt.Fprintf(w, "* %s\n", u.State)
		}
	case client.UpdateResult:
		if u.Err != nil {
			fmt.Fprintf(w, "! %s rejected: %v\n", u.Op, u.Err)
		}
	case client.UpdateExit:
		fmt.Fprintln(w, "* you are no longer in the room")
	case client.UpdateMessage:
		printMessage(w, u.Message)
	}
}

func printMessage(w io.Writer, m protocol.ServerMessage) {
	switch m := m.(type) {
	case protocol.LogEntry:
		fmt.Fprintf(w, "[%s] %s\n", m.Entry.Kind, m.Entry.Text)
	case protocol.ActionSuggestion:
		fmt.Fprintf(w, "? suggestion %s: %s (confirm with /confirm %s)\n",
			m.Suggestion.ID, describeCandidates(client.PendingSuggestion{Suggestion: m.Suggestion}), m.Suggestion.ID)
	case protocol.CombatUpdate:
		if cur, ok := m.Combat.Current(); ok {
			fmt.Fprintf(w, "* round %d, %s to act\n", m.Combat.Round, cur.Name)
		}
	case protocol.CombatResult:
		verdict := "misses"
		if m.Hit {
			verdict = fmt.Sprintf("hits for %d", m.Damage)
		}
		fmt.Fprintf(w, "* %s %s %s\n", m.ActorID, verdict, m.TargetID)
	case protocol.GameEnded:
		fmt.Fprintf(w, "* game over: %s\n", m.Reason)
	case protocol.Error:
		fmt.Fprintf(w, "! %s: %s\n", m.Code, m.Message)
	case protocol.InventoryUpdate:
		fmt.Fprintf(w, "* inventory of %s changed\n", m.ActorID)
	case protocol.CharacterUpdate:
		fmt.Fprintf(w, "* %s changed\n", m.ActorID)
	}
}

func printRoom(w io.Writer, snap client.Snapshot) {
	fmt.Fprintf(w, "room %s (v%d, %s)\n", snap.Room.Code, snap.Version, snap.Connection)
	for _, p := range snap.Room.Participants {
		mark := " "
		if p.ID == snap.Self {
			mark = ">"
		}
		fmt.Fprintf(w, " %s %-12s %-6s actor=%s connected=%t\n", mark, p.Name, p.Role, p.ActorID, p.Connected)
	}
	if c := snap.Room.Combat; c != nil {
		fmt.Fprintf(w, " round %d\n", c.Round)
		for i, e := range c.Order {
			mark := " "
			if i == c.Index {
				mark = ">"
			}
			hp := ""
			if e.HP != nil {
				hp = fmt.Sprintf(" hp=%d", *e.HP)
			}
			fmt.Fprintf(w, " %s %2d %s%s\n", mark, e.Total, e.Name, hp)
		}
		for _, h := range c.Held {
			fmt.Fprintf(w, "   held %s until %s\n", h.Entry.Name, h.Trigger)
		}
	}
}

func describeCandidates(p client.PendingSuggestion) string {
	if p.Edited != nil {
		return describeAction(*p.Edited) + " (edited)"
	}
	parts := make([]string, 0, len(p.Candidates))
	for i, a := range p.Candidates {
		parts = append(parts, fmt.Sprintf("%d:%s", i, describeAction(a)))
	}
	return strings.Join(parts, ", ")
}

func describeAction(a domain.Action) string {
	switch {
	case a.Destination != nil:
		return fmt.Sprintf("%s (%d, %d)", a.Kind, a.Destination.X, a.Destination.Y)
	case a.Trigger != "":
		return fmt.Sprintf("%s until %s", a.Kind, a.Trigger)
	case a.Target != "":
		return fmt.Sprintf("%s %s", a.Kind, a.Target)
	default:
		return string(a.Kind)
	}
}
