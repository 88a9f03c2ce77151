package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Result is the framed outcome of one device response: the terminator verdict
// plus any data lines that preceded it, joined in order.
type Result struct {
	Success bool
	Data    string
	Detail  string
}

// Crosspoint is one routing row from a crosspoint dump.
type Crosspoint struct {
	Zone  int
	Video int
	Audio int
}

// VTB is the scraped volume/tone/balance report for one zone. Every field is
// optional: nil means the device did not report it. Volume carries the raw
// device value even when it is outside 0-63; the device is known to report
// negative volumes for zones it considers unconfigured, and the fallback
// policy for those belongs to the caller, not the decoder.
type VTB struct {
	Volume       *int
	Muted        *bool
	Loudness     *bool
	BalanceLeft  *int
	BalanceRight *int
	Bass         *int
	Treble       *int
}

var (
	volumeRe   = regexp.MustCompile(`V:\s*([+-]?\d+)`)
	muteRe     = regexp.MustCompile(`M:\s*(\d)`)
	loudnessRe = regexp.MustCompile(`L:\s*(\d)`)
	balanceRe  = regexp.MustCompile(`BL:\s*(\d+)\s+BR:\s*(\d+)`)
	bassRe     = regexp.MustCompile(`B:\s*([+-]?\d+)`)
	trebleRe   = regexp.MustCompile(`T:\s*([+-]?\d+)`)
)

// ParseResponse frames a raw device response. A line exactly equal to DONE
// (case-insensitive) is unconditional success; a line equal to or starting
// with ERROR is failure, with the preceding line as error detail. Data lines
// before the terminator are joined in order. Responses without a terminator
// (VTB queries) are success if any data arrived. An empty response is
// ErrProtocol.
func ParseResponse(raw string) (Result, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("%w: empty response", ErrProtocol)
	}

	var data []string
	for _, line := range lines {
		status := strings.ToUpper(line)
		if status == "DONE" {
			return Result{Success: true, Data: strings.Join(data, "\n")}, nil
		}
		if strings.HasPrefix(status, "ERROR") {
			detail := "unknown error"
			if len(data) > 0 {
				detail = data[len(data)-1]
			}
			return Result{Success: false, Detail: detail}, nil
		}
		data = append(data, line)
	}
	return Result{Success: true, Data: strings.Join(data, "\n")}, nil
}

// ParseCrosspoints scrapes "OUTPUT n VIDEO v AUDIO a" rows out of a crosspoint
// dump. Rows that do not parse are skipped; the device interleaves banner text
// with data on some firmware revisions.
func ParseCrosspoints(data string) map[int]Crosspoint {
	points := make(map[int]Crosspoint)
	for _, line := range splitLines(data) {
		parts := strings.Fields(line)
		if len(parts) < 6 || parts[0] != "OUTPUT" {
			continue
		}
		zone, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		video, err := strconv.Atoi(parts[3])
		if err != nil {
			continue
		}
		audio, err := strconv.Atoi(parts[5])
		if err != nil {
			continue
		}
		points[zone] = Crosspoint{Zone: zone, Video: video, Audio: audio}
	}
	return points
}

// ParseVTB scrapes a VTB line, tolerant of the device's uneven whitespace.
// Format: "V:32  M:0  L:0  BL:00 BR:00 B: 0 T: 0".
func ParseVTB(data string) VTB {
	var vtb VTB
	if m := volumeRe.FindStringSubmatch(data); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			vtb.Volume = &v
		}
	}
	if m := muteRe.FindStringSubmatch(data); m != nil {
		muted := m[1] == "1"
		vtb.Muted = &muted
	}
	if m := loudnessRe.FindStringSubmatch(data); m != nil {
		loud := m[1] == "1"
		vtb.Loudness = &loud
	}
	if m := balanceRe.FindStringSubmatch(data); m != nil {
		if bl, err := strconv.Atoi(m[1]); err == nil {
			vtb.BalanceLeft = &bl
		}
		if br, err := strconv.Atoi(m[2]); err == nil {
			vtb.BalanceRight = &br
		}
	}
	if m := bassRe.FindStringSubmatch(data); m != nil {
		if b, err := strconv.Atoi(m[1]); err == nil {
			vtb.Bass = &b
		}
	}
	if m := trebleRe.FindStringSubmatch(data); m != nil {
		if tr, err := strconv.Atoi(m[1]); err == nil {
			vtb.Treble = &tr
		}
	}
	return vtb
}

// HasTerminator reports whether accumulated response text already contains a
// DONE or ERROR terminator. Used by the transport read loop.
func HasTerminator(buf string) bool {
	return strings.Contains(buf, "DONE") || strings.Contains(buf, "ERROR")
}

func splitLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
