package prereq

// Status of one prerequisite. NotMet may become Met; nothing else moves.
type Status int

const (
	NotMet Status = iota
	Met
	// Unimplemented marks a prerequisite no artifact can satisfy yet.
	Unimplemented
)

func (s Status) String() string {
	switch s {
	case Met:
		return "met"
	case Unimplemented:
		return "unimplemented"
	default:
		return "not met"
	}
}

// Name identifies a prerequisite.
type Name string

const (
	SecurityGroups    Name = "SecurityGroups"
	DeviceGroups      Name = "DeviceGroups"
	SensitivityLabels Name = "SensitivityLabels"
)

// Requirement is one prerequisite of a step with its current status.
type Requirement struct {
	Name   Name
	Title  string
	Status Status
}
