package domain

// Mode selects the persona applied by the chat gateway.
type Mode string

const (
	ModeResearch Mode = "research"
	ModeCode     Mode = "code"
)

func ParseMode(raw string) Mode {
	if Mode(raw) == ModeCode {
		return ModeCode
	}
	return ModeResearch
}
