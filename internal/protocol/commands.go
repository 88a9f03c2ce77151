package protocol

import "fmt"

// Knox Chameleon64i wire command encoding.
//
// Every command is fixed-width zero-padded decimal with no separators and is
// terminated on the wire by a single carriage return (the transport appends
// it). Zones and inputs are 01-64. Volume is 00-63 on the Knox inverted
// scale: 00 is loudest, 63 is quietest.

const (
	MinZone   = 1
	MaxZone   = 64
	MinInput  = 1
	MaxInput  = 64
	MinVolume = 0
	MaxVolume = 63

	MinPattern = 1
	MaxPattern = 20

	MinTone = -7
	MaxTone = 7
)

// ValidateZone checks a zone number against the device range.
func ValidateZone(zone int) error {
	if zone < MinZone || zone > MaxZone {
		return fmt.Errorf("%w: zone must be %d-%d, got %d", ErrInvalidArgument, MinZone, MaxZone, zone)
	}
	return nil
}

// ValidateInput checks an input number against the device range.
func ValidateInput(input int) error {
	if input < MinInput || input > MaxInput {
		return fmt.Errorf("%w: input must be %d-%d, got %d", ErrInvalidArgument, MinInput, MaxInput, input)
	}
	return nil
}

// ValidateVolume checks a volume value against the device range.
func ValidateVolume(volume int) error {
	if volume < MinVolume || volume > MaxVolume {
		return fmt.Errorf("%w: volume must be %d-%d, got %d", ErrInvalidArgument, MinVolume, MaxVolume, volume)
	}
	return nil
}

// ValidatePattern checks a stored-pattern slot number.
func ValidatePattern(pattern int) error {
	if pattern < MinPattern || pattern > MaxPattern {
		return fmt.Errorf("%w: pattern must be %d-%d, got %d", ErrInvalidArgument, MinPattern, MaxPattern, pattern)
	}
	return nil
}

// SetInput routes both video and audio from input to zone. Bxxyy.
func SetInput(zone, input int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if err := ValidateInput(input); err != nil {
		return "", err
	}
	return fmt.Sprintf("B%02d%02d", zone, input), nil
}

// SetVideoInput routes video only. Vxxyy.
func SetVideoInput(zone, input int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if err := ValidateInput(input); err != nil {
		return "", err
	}
	return fmt.Sprintf("V%02d%02d", zone, input), nil
}

// SetAudioInput routes audio only. Axxyy.
func SetAudioInput(zone, input int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if err := ValidateInput(input); err != nil {
		return "", err
	}
	return fmt.Sprintf("A%02d%02d", zone, input), nil
}

// SetVolume sets the zone volume on the inverted scale. $Vxxyy.
func SetVolume(zone, volume int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if err := ValidateVolume(volume); err != nil {
		return "", err
	}
	return fmt.Sprintf("$V%02d%02d", zone, volume), nil
}

// VolumeUp steps the zone louder (decrements the Knox value). $Vxx+ or $Vxxn+.
func VolumeUp(zone, steps int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if steps <= 1 {
		return fmt.Sprintf("$V%02d+", zone), nil
	}
	return fmt.Sprintf("$V%02d%d+", zone, steps), nil
}

// VolumeDown steps the zone quieter (increments the Knox value). $Vxx- or $Vxxn-.
func VolumeDown(zone, steps int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if steps <= 1 {
		return fmt.Sprintf("$V%02d-", zone), nil
	}
	return fmt.Sprintf("$V%02d%d-", zone, steps), nil
}

// SetMute sets the zone mute flag. $Mxx0 or $Mxx1.
func SetMute(zone int, mute bool) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	flag := "0"
	if mute {
		flag = "1"
	}
	return fmt.Sprintf("$M%02d%s", zone, flag), nil
}

// ValidateTone checks a bass or treble value against the device range.
func ValidateTone(value int) error {
	if value < MinTone || value > MaxTone {
		return fmt.Errorf("%w: tone must be %d-%d, got %d", ErrInvalidArgument, MinTone, MaxTone, value)
	}
	return nil
}

// SetBass sets the zone bass level, -7 to +7. $Bxx+n or $Bxx-n.
func SetBass(zone, value int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if err := ValidateTone(value); err != nil {
		return "", err
	}
	return fmt.Sprintf("$B%02d%+d", zone, value), nil
}

// SetTreble sets the zone treble level, -7 to +7. $Txx+n or $Txx-n.
func SetTreble(zone, value int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	if err := ValidateTone(value); err != nil {
		return "", err
	}
	return fmt.Sprintf("$T%02d%+d", zone, value), nil
}

// BalanceDirection selects how SetBalance shifts the stereo balance.
type BalanceDirection int

const (
	// BalanceShiftLeft attenuates the right channel. $Sxx-.
	BalanceShiftLeft BalanceDirection = iota
	// BalanceShiftRight attenuates the left channel. $Sxx+.
	BalanceShiftRight
	// BalanceCenter resets the balance. $Sxx0.
	BalanceCenter
)

// SetBalance shifts or recenters the zone balance.
func SetBalance(zone int, dir BalanceDirection) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	switch dir {
	case BalanceShiftLeft:
		return fmt.Sprintf("$S%02d-", zone), nil
	case BalanceShiftRight:
		return fmt.Sprintf("$S%02d+", zone), nil
	case BalanceCenter:
		return fmt.Sprintf("$S%02d0", zone), nil
	default:
		return "", fmt.Errorf("%w: unknown balance direction %d", ErrInvalidArgument, dir)
	}
}

// QueryCrosspoint asks for the routing of one zone. Dxx.
func QueryCrosspoint(zone int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	return fmt.Sprintf("D%02d", zone), nil
}

// QueryCrosspointRange asks for the routing of a contiguous zone range with a
// single command. Dxxyy.
func QueryCrosspointRange(first, last int) (string, error) {
	if err := ValidateZone(first); err != nil {
		return "", err
	}
	if err := ValidateZone(last); err != nil {
		return "", err
	}
	if last < first {
		return "", fmt.Errorf("%w: range last %d before first %d", ErrInvalidArgument, last, first)
	}
	return fmt.Sprintf("D%02d%02d", first, last), nil
}

// QueryVTB asks for volume/tone/balance of one zone. $Dxx. The device answers
// with a single line and no DONE terminator.
func QueryVTB(zone int) (string, error) {
	if err := ValidateZone(zone); err != nil {
		return "", err
	}
	return fmt.Sprintf("$D%02d", zone), nil
}

// StorePattern saves the current crosspoint pattern to slot nn. Snn.
func StorePattern(pattern int) (string, error) {
	if err := ValidatePattern(pattern); err != nil {
		return "", err
	}
	return fmt.Sprintf("S%02d", pattern), nil
}

// RecallPattern restores a stored crosspoint pattern. Rnn.
func RecallPattern(pattern int) (string, error) {
	if err := ValidatePattern(pattern); err != nil {
		return "", err
	}
	return fmt.Sprintf("R%02d", pattern), nil
}

// QueryAllCrosspoints asks for the full routing table. M.
func QueryAllCrosspoints() string { return "M" }

// QueryFirmware asks for the device signon and firmware revision. I.
func QueryFirmware() string { return "I" }

// QueryCards asks for the installed crosspoint card list. W.
func QueryCards() string { return "W" }

// QueryHelp asks the device for its command help text. H.
func QueryHelp() string { return "H" }

// IsVTBQuery reports whether command is a single-zone VTB query, the one
// documented command whose response carries no DONE/ERROR terminator. The
// transport uses this to switch to idle-based framing.
func IsVTBQuery(command string) bool {
	return len(command) >= 4 && command[0] == '$' && command[1] == 'D'
}
