// Package sgf reads and writes game records. Only the mainline of a
// record is followed; variations are skipped.
package sgf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"tengen/game"
)

// node is one SGF node: a property multimap.
type node struct {
	props map[string][]string
}

// parse tokenizes the mainline of the first game tree: since only first
// children are followed, the mainline is exactly the node sequence up to
// the first closing parenthesis.
func parse(text string) ([]node, error) {
	var nodes []node
	i := 0
	n := len(text)
	for i < n {
		c := text[i]
		switch {
		case c == '(':
			i++
		case c == ')':
			if len(nodes) == 0 {
				return nil, fmt.Errorf("no SGF game tree found")
			}
			return nodes, nil
		case c == ';':
			i++
			nd := node{props: map[string][]string{}}
			for i < n {
				for i < n && isSpace(text[i]) {
					i++
				}
				if i >= n || !isUpper(text[i]) {
					break
				}
				start := i
				for i < n && isUpper(text[i]) {
					i++
				}
				ident := text[start:i]
				for i < n && text[i] == '[' {
					end := strings.IndexByte(text[i+1:], ']')
					if end < 0 {
						return nil, fmt.Errorf("unterminated property %s", ident)
					}
					nd.props[ident] = append(nd.props[ident], text[i+1:i+1+end])
					i += end + 2
					for i < n && isSpace(text[i]) {
						i++
					}
				}
			}
			nodes = append(nodes, nd)
		default:
			i++
		}
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no SGF game tree found")
	}
	return nodes, nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

// sgfVertex decodes an SGF coordinate pair; empty or "tt" is a pass.
func sgfVertex(s string) (int, error) {
	if s == "" || s == "tt" {
		return game.Pass, nil
	}
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid SGF coordinate %q", s)
	}
	x := int(s[0] - 'a')
	// SGF rows grow downward.
	y := game.BoardSize - 1 - int(s[1]-'a')
	if x < 0 || x >= game.BoardSize || y < 0 || y >= game.BoardSize {
		return 0, fmt.Errorf("SGF coordinate %q off board", s)
	}
	return game.Vertex(x, y), nil
}

func formatSGFVertex(move int) string {
	if move == game.Pass || move == game.Resign {
		return "tt"
	}
	x, y := game.VertexXY(move)
	return string([]byte{byte('a' + x), byte('a' + game.BoardSize - 1 - y)})
}

// LoadFile replays a record up to (not including) moveNum; pass a large
// number for the whole game.
func LoadFile(path string, moveNum int) (*game.State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(string(raw), moveNum)
}

// Load parses SGF text into a replayed game state.
func Load(text string, moveNum int) (*game.State, error) {
	nodes, err := parse(text)
	if err != nil {
		return nil, err
	}

	root := nodes[0]
	if sz, ok := root.props["SZ"]; ok {
		size, err := strconv.Atoi(sz[0])
		if err != nil || size != game.BoardSize {
			return nil, fmt.Errorf("unsupported board size %q", sz[0])
		}
	}
	komi := 7.5
	if km, ok := root.props["KM"]; ok {
		if f, err := strconv.ParseFloat(km[0], 64); err == nil {
			komi = f
		}
	}

	state := game.NewState(komi)
	for _, v := range root.props["AB"] {
		move, err := sgfVertex(v)
		if err != nil {
			return nil, err
		}
		state.PlayMove(game.Black, move)
	}
	if len(root.props["AB"]) > 0 {
		state.SetHandicap(len(root.props["AB"]))
		state.SetToMove(game.White)
	}

	played := 0
	for _, nd := range nodes {
		for _, prop := range []struct {
			ident string
			color game.Color
		}{{"B", game.Black}, {"W", game.White}} {
			vals, ok := nd.props[prop.ident]
			if !ok {
				continue
			}
			if played >= moveNum {
				return state, nil
			}
			move, err := sgfVertex(vals[0])
			if err != nil {
				return nil, err
			}
			if !state.IsLegal(prop.color, move) {
				return nil, fmt.Errorf("illegal move %s at move %d",
					game.FormatVertex(move), played+1)
			}
			state.PlayMove(prop.color, move)
			played++
		}
	}
	return state, nil
}

// Save renders the game as a single-line SGF record.
func Save(state *game.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(;GM[1]FF[4]CA[UTF-8]AP[tengen]RU[Chinese]SZ[%d]KM[%.1f]",
		game.BoardSize, state.Komi())
	if h := state.Handicap(); h > 0 {
		fmt.Fprintf(&sb, "HA[%d]", h)
	}
	for _, entry := range state.MoveHistory() {
		tag := "B"
		if entry.Color == game.White {
			tag = "W"
		}
		if entry.Move == game.Resign {
			continue
		}
		fmt.Fprintf(&sb, ";%s[%s]", tag, formatSGFVertex(entry.Move))
	}
	if state.GameOver() && !state.HasResigned() {
		score := state.FinalScore()
		switch {
		case score > 0:
			fmt.Fprintf(&sb, "C[B+%.1f]", score)
		case score < 0:
			fmt.Fprintf(&sb, "C[W+%.1f]", -score)
		default:
			sb.WriteString("C[Draw]")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// SaveFile writes the record to disk.
func SaveFile(state *game.State, path string) error {
	return os.WriteFile(path, []byte(Save(state)+"\n"), 0o644)
}
