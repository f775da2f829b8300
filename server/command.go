package server

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a control command verb.
type Kind int

// Supported command kinds. KindUnknown covers every verb outside the table.
const (
	KindUnknown Kind = iota
	KindAuth
	KindUser
	KindSyst
	KindPwd
	KindType
	KindList
	KindPasv
	KindPort
	KindCwd
	KindCdUp
	KindMkd
	KindRmd
	KindStor
	KindRetr
	KindQuit
	KindNoop
)

// TransferType is the representation type selected with TYPE.
type TransferType byte

const (
	TypeASCII TransferType = 'A'
	TypeImage TransferType = 'I'
)

func (t TransferType) String() string {
	return string(t)
}

type verbInfo struct {
	kind     Kind
	needsArg bool
}

// verbs is the fixed verb table. Lookups use the upper-cased verb.
var verbs = map[string]verbInfo{
	"AUTH": {KindAuth, false},
	"USER": {KindUser, true},
	"SYST": {KindSyst, false},
	"PWD":  {KindPwd, false},
	"TYPE": {KindType, true},
	"LIST": {KindList, false},
	"PASV": {KindPasv, false},
	"PORT": {KindPort, true},
	"CWD":  {KindCwd, true},
	"CDUP": {KindCdUp, false},
	"MKD":  {KindMkd, true},
	"RMD":  {KindRmd, true},
	"STOR": {KindStor, true},
	"RETR": {KindRetr, true},
	"QUIT": {KindQuit, false},
	"NOOP": {KindNoop, false},
}

// Command is one parsed control line.
//
// Only the fields relevant to Kind are set: Arg holds the path or user
// name, Type is set for TYPE and Port for PORT. Verb is the verb as the
// client sent it, which is what an unknown command reports back.
type Command struct {
	Kind Kind
	Verb string
	Arg  string
	Type TransferType
	Port int
}

// ParseError reports a malformed argument for a known verb.
type ParseError struct {
	Verb   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid argument for %s: %s", e.Verb, e.Reason)
}

// ParseCommand turns a control line (CRLF already stripped) into a Command.
// Unknown verbs are not an error: they yield a KindUnknown command.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimLeft(line, " ")
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	info, ok := verbs[strings.ToUpper(verb)]
	if !ok {
		return Command{Kind: KindUnknown, Verb: verb, Arg: arg}, nil
	}

	cmd := Command{Kind: info.kind, Verb: strings.ToUpper(verb), Arg: arg}
	if info.needsArg && arg == "" {
		return cmd, &ParseError{Verb: cmd.Verb, Reason: "missing argument"}
	}

	switch info.kind {
	case KindType:
		switch strings.ToUpper(arg) {
		case "A":
			cmd.Type = TypeASCII
		case "I":
			cmd.Type = TypeImage
		default:
			return cmd, &ParseError{Verb: cmd.Verb, Reason: fmt.Sprintf("unsupported type %q", arg)}
		}
	case KindPort:
		port, err := parsePortArg(arg)
		if err != nil {
			return cmd, &ParseError{Verb: cmd.Verb, Reason: err.Error()}
		}
		cmd.Port = port
	case KindList:
		cmd.Arg = stripListOptions(arg)
	}

	return cmd, nil
}

// parsePortArg decodes "h1,h2,h3,h4,p1,p2" and returns p1*256+p2.
// The host octets are validated but not used: the server only connects
// back to the control connection's peer.
func parsePortArg(arg string) (int, error) {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		return 0, fmt.Errorf("expected 6 comma-separated values, got %d", len(parts))
	}

	var octets [6]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return 0, fmt.Errorf("value %q is not an octet", p)
		}
		octets[i] = v
	}

	port := octets[4]*256 + octets[5]
	if port <= 1024 {
		return 0, fmt.Errorf("port %d is reserved", port)
	}
	return port, nil
}

// stripListOptions drops ls-style flags ("-la") some clients send with LIST.
func stripListOptions(arg string) string {
	for strings.HasPrefix(arg, "-") {
		_, rest, _ := strings.Cut(arg, " ")
		arg = strings.TrimLeft(rest, " ")
	}
	return arg
}
