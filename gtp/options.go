package gtp

import (
	"strconv"
	"strings"
)

// cmdSetOption implements lz-setoption: "lz-setoption name <n> value <v>".
// Option names may contain spaces; called without arguments it lists the
// supported options.
func (s *Session) cmdSetOption(id int, args []string) {
	if len(args) == 0 {
		s.ok(id, "%s", strings.Join(setoptionList, "\n"))
		return
	}
	if strings.ToLower(args[0]) != "name" {
		s.fail(id, "incorrect syntax for lz-setoption")
		return
	}

	var nameParts, valueParts []string
	inValue := false
	for _, tok := range args[1:] {
		if !inValue && strings.ToLower(tok) == "value" {
			inValue = true
			continue
		}
		if inValue {
			valueParts = append(valueParts, tok)
		} else {
			nameParts = append(nameParts, tok)
		}
	}
	name := strings.ToLower(strings.Join(nameParts, " "))
	value := strings.Join(valueParts, " ")

	switch name {
	case "maximum memory use (mib)":
		n, err := strconv.Atoi(value)
		if err != nil || n < 128 || n > 131072 {
			s.fail(id, "incorrect value")
			return
		}
		msg, err := s.engine.SetMaxMemory(n)
		if err != nil {
			s.fail(id, "%s", err.Error())
			return
		}
		s.ok(id, "%s", msg)
	case "percentage of memory for cache":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 99 {
			s.fail(id, "incorrect value")
			return
		}
		msg, err := s.engine.SetCacheRatio(n)
		if err != nil {
			s.fail(id, "%s", err.Error())
			return
		}
		s.ok(id, "%s", msg)
	case "visits":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 1000000000 {
			s.fail(id, "incorrect value")
			return
		}
		s.engine.SetVisits(n)
		s.ok(id, "")
	case "playouts":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 1000000000 {
			s.fail(id, "incorrect value")
			return
		}
		if err := s.engine.SetPlayouts(n); err != nil {
			s.fail(id, "incorrect value")
			return
		}
		s.ok(id, "")
	case "lagbuffer":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 3000 {
			s.fail(id, "incorrect value")
			return
		}
		s.engine.SetLagBuffer(n)
		s.ok(id, "")
	case "pondering":
		switch value {
		case "true":
			if err := s.engine.SetPondering(true); err != nil {
				s.fail(id, "incorrect value")
				return
			}
		case "false":
			if err := s.engine.SetPondering(false); err != nil {
				s.fail(id, "incorrect value")
				return
			}
		default:
			s.fail(id, "incorrect value")
			return
		}
		s.ok(id, "")
	case "resign percentage":
		n, err := strconv.Atoi(value)
		if err != nil || n < -1 || n > 30 {
			s.fail(id, "incorrect value")
			return
		}
		s.engine.SetResignPercent(n)
		s.ok(id, "")
	default:
		s.fail(id, "Unknown option")
	}
}
