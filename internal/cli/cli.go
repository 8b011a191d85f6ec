package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRecord  Command = "record"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandRetry   Command = "retry"
	CommandList    Command = "list"
	CommandShow    Command = "show"
	CommandDelete  Command = "delete"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// needsMeetingID marks commands that take exactly one meeting id argument.
var needsMeetingID = map[Command]bool{
	CommandRetry:  true,
	CommandShow:   true,
	CommandDelete: true,
}

var validCommands = map[Command]struct{}{
	CommandRecord:  {},
	CommandStop:    {},
	CommandCancel:  {},
	CommandStatus:  {},
	CommandRetry:   {},
	CommandList:    {},
	CommandShow:    {},
	CommandDelete:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Title      string
	MeetingID  string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	haveCommand := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--title":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--title requires a value")
			}
			parsed.Title = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			if haveCommand {
				if needsMeetingID[parsed.Command] && parsed.MeetingID == "" {
					parsed.MeetingID = arg
					continue
				}
				return Parsed{}, fmt.Errorf("unexpected argument: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			haveCommand = true
		}
	}

	if needsMeetingID[parsed.Command] && parsed.MeetingID == "" {
		return Parsed{}, fmt.Errorf("%s requires a meeting id", parsed.Command)
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Commands:
  record    Start a meeting recording session (blocks until stop/cancel)
  stop      Stop the active recording and run transcription
  cancel    Cancel the active recording and discard captured audio
  status    Print the active session state
  retry     Re-run the pipeline for a failed meeting: %[1]s retry <meeting-id>
  list      List recorded meetings for the configured user
  show      Print one meeting record and its minutes: %[1]s show <meeting-id>
  delete    Delete a meeting record and its artifacts: %[1]s delete <meeting-id>
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/minute/config.yaml)
  --title TITLE   Meeting title for the record command
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
