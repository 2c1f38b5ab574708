// Package gtp is the line-oriented text protocol front-end. Commands
// arrive one per line; replies are prefixed "=" (ok) or "?" (error) and
// terminated by a blank line. Logs never touch the protocol channel.
package gtp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"tengen/engine"
	"tengen/game"
	"tengen/sgf"
)

const (
	ProtocolVersion = 2
	EngineName      = "tengen"
	EngineVersion   = "0.1"
)

var commands = []string{
	"protocol_version",
	"name",
	"version",
	"quit",
	"known_command",
	"list_commands",
	"boardsize",
	"clear_board",
	"komi",
	"play",
	"genmove",
	"showboard",
	"undo",
	"final_score",
	"final_status_list",
	"time_settings",
	"time_left",
	"fixed_handicap",
	"place_free_handicap",
	"set_free_handicap",
	"loadsgf",
	"printsgf",
	"kgs-genmove_cleanup",
	"kgs-time_settings",
	"kgs-game_over",
	"lz-analyze",
	"lz-genmove_analyze",
	"lz-memory_report",
	"lz-setoption",
}

var setoptionList = []string{
	"option name Maximum Memory Use (MiB) type spin default 2048 min 128 max 131072",
	"option name Percentage of memory for cache type spin default 10 min 1 max 99",
	"option name Visits type spin default 0 min 0 max 1000000000",
	"option name Playouts type spin default 0 min 0 max 1000000000",
	"option name Lagbuffer type spin default 100 min 0 max 3000",
	"option name Resign Percentage type spin default -1 min -1 max 30",
	"option name Pondering type check default true",
}

// Session drives one GTP connection.
type Session struct {
	engine *engine.Engine
	out    io.Writer

	analyzeCancel context.CancelFunc
	analyzeDone   chan struct{}
}

// Run reads commands until EOF or quit.
func Run(in io.Reader, out io.Writer, e *engine.Engine) error {
	s := &Session{engine: e, out: out}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := preprocess(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Any new command interrupts background search.
		s.stopAnalyze()
		e.StopPonder()

		id, command, args := splitCommand(line)
		if command == "quit" || command == "exit" {
			s.ok(id, "")
			return nil
		}
		s.dispatch(id, command, args)
	}
	s.stopAnalyze()
	e.StopPonder()
	return sc.Err()
}

// preprocess strips control characters and squeezes whitespace, per the
// protocol's input rules. Case is preserved; loadsgf needs the original
// path and the remaining commands compare case-insensitively.
func preprocess(raw string) string {
	var sb strings.Builder
	lastSpace := false
	for _, r := range raw {
		if r == '\t' {
			r = ' '
		}
		if r < 32 || r == 127 {
			continue
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}

// splitCommand peels the optional numeric id off the front.
func splitCommand(line string) (id int, command string, args []string) {
	fields := strings.Fields(line)
	id = -1
	if n, err := strconv.Atoi(fields[0]); err == nil {
		id = n
		fields = fields[1:]
		if len(fields) == 0 {
			return id, "", nil
		}
	}
	return id, strings.ToLower(fields[0]), fields[1:]
}

func (s *Session) prefix(id int, ok bool) string {
	mark := "="
	if !ok {
		mark = "?"
	}
	if id >= 0 {
		return fmt.Sprintf("%s%d", mark, id)
	}
	return mark
}

func (s *Session) ok(id int, format string, a ...any) {
	body := fmt.Sprintf(format, a...)
	if body == "" {
		fmt.Fprintf(s.out, "%s\n\n", s.prefix(id, true))
		return
	}
	fmt.Fprintf(s.out, "%s %s\n\n", s.prefix(id, true), body)
}

func (s *Session) fail(id int, format string, a ...any) {
	fmt.Fprintf(s.out, "%s %s\n\n", s.prefix(id, false), fmt.Sprintf(format, a...))
}

func (s *Session) dispatch(id int, command string, args []string) {
	switch command {
	case "protocol_version":
		s.ok(id, "%d", ProtocolVersion)
	case "name":
		s.ok(id, "%s", EngineName)
	case "version":
		s.ok(id, "%s", EngineVersion)
	case "known_command":
		known := "false"
		if len(args) == 1 {
			for _, c := range commands {
				if c == strings.ToLower(args[0]) {
					known = "true"
				}
			}
		}
		s.ok(id, "%s", known)
	case "list_commands":
		s.ok(id, "%s", strings.Join(commands, "\n"))
	case "boardsize":
		s.cmdBoardsize(id, args)
	case "clear_board":
		s.engine.ClearBoard()
		s.ok(id, "")
	case "komi":
		s.cmdKomi(id, args)
	case "play":
		s.cmdPlay(id, args)
	case "genmove":
		s.cmdGenMove(id, args, false, false)
	case "lz-genmove_analyze":
		s.cmdGenMove(id, args, false, true)
	case "kgs-genmove_cleanup":
		s.cmdGenMove(id, args, true, false)
	case "lz-analyze":
		s.cmdAnalyze(id, args)
	case "showboard":
		s.ok(id, "\n%s", s.engine.State().String())
	case "undo":
		if s.engine.Undo() {
			s.ok(id, "")
		} else {
			s.fail(id, "cannot undo")
		}
	case "final_score":
		s.cmdFinalScore(id)
	case "final_status_list":
		s.cmdFinalStatusList(id, args)
	case "time_settings":
		s.cmdTimeSettings(id, args)
	case "kgs-time_settings":
		s.cmdKGSTimeSettings(id, args)
	case "time_left":
		s.cmdTimeLeft(id, args)
	case "kgs-game_over":
		// Acknowledge without pondering.
		s.ok(id, "")
	case "fixed_handicap":
		s.cmdFixedHandicap(id, args)
	case "place_free_handicap":
		s.cmdPlaceFreeHandicap(id, args)
	case "set_free_handicap":
		s.cmdSetFreeHandicap(id, args)
	case "loadsgf":
		s.cmdLoadSGF(id, args)
	case "printsgf":
		s.cmdPrintSGF(id, args)
	case "lz-memory_report":
		s.cmdMemoryReport(id)
	case "lz-setoption":
		s.cmdSetOption(id, args)
	default:
		s.fail(id, "unknown command")
	}
}

func (s *Session) cmdBoardsize(id int, args []string) {
	if len(args) != 1 {
		s.fail(id, "syntax not understood")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		s.fail(id, "syntax not understood")
		return
	}
	if n != game.BoardSize {
		s.fail(id, "unacceptable size")
		return
	}
	s.engine.ClearBoard()
	s.ok(id, "")
}

func (s *Session) cmdKomi(id int, args []string) {
	if len(args) != 1 {
		s.fail(id, "syntax not understood")
		return
	}
	komi, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		s.fail(id, "syntax not understood")
		return
	}
	s.engine.SetKomi(komi)
	s.ok(id, "")
}

func (s *Session) cmdPlay(id int, args []string) {
	if len(args) != 2 {
		s.fail(id, "syntax not understood")
		return
	}
	if err := s.engine.Play(args[0], args[1]); err != nil {
		s.fail(id, "illegal move")
		return
	}
	s.ok(id, "")
}

func (s *Session) cmdGenMove(id int, args []string, cleanup, analyze bool) {
	if len(args) < 1 {
		s.fail(id, "syntax not understood")
		return
	}
	color, err := game.ParseColor(args[0])
	if err != nil {
		s.fail(id, "syntax error")
		return
	}

	opts := engine.GenMoveOptions{Cleanup: cleanup}
	if analyze {
		interval := 10
		if len(args) >= 2 {
			if n, err := strconv.Atoi(args[1]); err == nil {
				interval = n
			}
		}
		opts.AnalysisWriter = s.out
		opts.AnalysisIntervalCS = interval
		// Multi-line response starts now.
		fmt.Fprintf(s.out, "%s\n", s.prefix(id, true))
	}
	if cleanup {
		s.engine.State().SetPasses(0)
	}

	move, err := s.engine.GenMove(color, opts)
	if err != nil {
		log.Error().Err(err).Msg("genmove failed")
		if !analyze {
			s.fail(id, "search failed")
			return
		}
		fmt.Fprintf(s.out, "\n")
		return
	}

	vertex := game.FormatVertex(move)
	if analyze {
		fmt.Fprintf(s.out, "play %s\n\n", vertex)
	} else {
		s.ok(id, "%s", vertex)
	}
	if !s.engine.State().HasResigned() {
		s.engine.StartPonder()
	}
}

func (s *Session) cmdAnalyze(id int, args []string) {
	color := s.engine.State().ToMove()
	interval := 10
	rest := args
	if len(rest) > 0 {
		if c, err := game.ParseColor(rest[0]); err == nil {
			color = c
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			s.fail(id, "syntax not understood")
			return
		}
		interval = n
	}

	// Multi-line response; it terminates when the next command arrives.
	fmt.Fprintf(s.out, "%s\n", s.prefix(id, true))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.analyzeCancel = cancel
	s.analyzeDone = done
	go func() {
		defer close(done)
		if err := s.engine.Analyze(ctx, color, s.out, interval); err != nil {
			log.Error().Err(err).Msg("analyze failed")
		}
	}()
}

func (s *Session) stopAnalyze() {
	if s.analyzeCancel == nil {
		return
	}
	s.analyzeCancel()
	<-s.analyzeDone
	s.analyzeCancel = nil
	s.analyzeDone = nil
	// Terminate the multi-line response.
	fmt.Fprintf(s.out, "\n")
}

func (s *Session) cmdFinalScore(id int) {
	score := s.engine.State().FinalScore()
	switch {
	case score > 0.1:
		s.ok(id, "B+%3.1f", score)
	case score < -0.1:
		s.ok(id, "W+%3.1f", -score)
	default:
		s.ok(id, "0")
	}
}

func (s *Session) cmdFinalStatusList(id int, args []string) {
	if len(args) != 1 {
		s.fail(id, "syntax not understood")
		return
	}
	switch args[0] {
	case "alive":
		var lines []string
		for _, group := range s.engine.State().Groups() {
			parts := make([]string, len(group))
			for i, v := range group {
				parts[i] = game.FormatVertex(v)
			}
			lines = append(lines, strings.Join(parts, " "))
		}
		s.ok(id, "%s", strings.Join(lines, "\n"))
	case "dead":
		s.ok(id, "")
	default:
		s.ok(id, "")
	}
}

func (s *Session) cmdTimeSettings(id int, args []string) {
	if len(args) != 3 {
		s.fail(id, "syntax not understood")
		return
	}
	vals, err := atoiAll(args)
	if err != nil {
		s.fail(id, "syntax not understood")
		return
	}
	s.engine.TimeSettings(vals[0]*100, vals[1]*100, vals[2], 0)
	s.ok(id, "")
}

func (s *Session) cmdKGSTimeSettings(id int, args []string) {
	if len(args) < 1 {
		s.fail(id, "syntax not understood")
		return
	}
	kind := args[0]
	vals, err := atoiAll(args[1:])
	if err != nil {
		s.fail(id, "syntax not understood")
		return
	}
	switch {
	case kind == "none":
		s.engine.TimeSettings(30*60*100, 0, 0, 0)
	case kind == "absolute" && len(vals) == 1:
		s.engine.TimeSettings(vals[0]*100, 0, 0, 0)
	case kind == "canadian" && len(vals) == 3:
		s.engine.TimeSettings(vals[0]*100, vals[1]*100, vals[2], 0)
	case kind == "byoyomi" && len(vals) == 3:
		s.engine.TimeSettings(vals[0]*100, vals[1]*100, 0, vals[2])
	default:
		s.fail(id, "syntax not understood")
		return
	}
	s.ok(id, "")
}

func (s *Session) cmdTimeLeft(id int, args []string) {
	if len(args) != 3 {
		s.fail(id, "syntax not understood")
		return
	}
	color, err := game.ParseColor(args[0])
	if err != nil {
		s.fail(id, "color not understood")
		return
	}
	vals, err := atoiAll(args[1:])
	if err != nil {
		s.fail(id, "syntax not understood")
		return
	}
	s.engine.TimeLeft(color, vals[0]*100, vals[1])
	s.ok(id, "")
	// KGS sends time_left after our move; keep thinking on their time.
	s.engine.StartPonder()
}

func (s *Session) cmdFixedHandicap(id int, args []string) {
	n, err := strconv.Atoi(argOr(args, 0, ""))
	if err != nil {
		s.fail(id, "Not a valid number of handicap stones")
		return
	}
	stones := s.engine.FixedHandicap(n)
	if stones == nil {
		s.fail(id, "Not a valid number of handicap stones")
		return
	}
	s.ok(id, "%s", strings.Join(stones, " "))
}

func (s *Session) cmdPlaceFreeHandicap(id int, args []string) {
	n, err := strconv.Atoi(argOr(args, 0, ""))
	if err != nil {
		s.fail(id, "Not a valid number of handicap stones")
		return
	}
	stones := s.engine.PlaceFreeHandicap(n)
	if stones == nil {
		s.fail(id, "Not a valid number of handicap stones")
		return
	}
	s.ok(id, "%s", strings.Join(stones, " "))
}

func (s *Session) cmdSetFreeHandicap(id int, args []string) {
	if len(args) < 2 {
		s.fail(id, "syntax not understood")
		return
	}
	if err := s.engine.SetFreeHandicap(args); err != nil {
		s.fail(id, "illegal move")
		return
	}
	s.ok(id, "%s", strings.Join(s.engine.StoneList(), " "))
}

func (s *Session) cmdLoadSGF(id int, args []string) {
	if len(args) < 1 {
		s.fail(id, "Missing filename.")
		return
	}
	moveNum := 999
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			moveNum = n
		}
	}
	state, err := sgf.LoadFile(args[0], moveNum-1)
	if err != nil {
		s.fail(id, "cannot load file")
		return
	}
	s.engine.Replace(state)
	s.ok(id, "")
}

func (s *Session) cmdPrintSGF(id int, args []string) {
	text := sgf.Save(s.engine.State())
	if len(args) == 0 {
		s.ok(id, "%s", text)
		return
	}
	if err := sgf.SaveFile(s.engine.State(), args[0]); err != nil {
		s.fail(id, "cannot save file")
		return
	}
	s.ok(id, "")
}

func (s *Session) cmdMemoryReport(id int) {
	base, tree, cache := s.engine.MemoryReport()
	total := base + tree + cache
	s.ok(id, "Estimated total memory consumption: %d MiB.\nNetwork with overhead: %d MiB / Search tree: %d MiB / Network cache: %d",
		total/engine.MiB, base/engine.MiB, tree/engine.MiB, cache/engine.MiB)
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func atoiAll(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
