// Package reply formats FTP control-channel replies: a 3-digit code, a
// space, and a CRLF-terminated message, with RFC 959 multi-line
// continuation support.
package reply

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is an FTP reply status code.
type Code int

const (
	FileStatusOK              Code = 150
	CommandOK                 Code = 200
	FeatureList               Code = 211
	FileStatus                Code = 213
	SystemType                Code = 215
	ServiceReady               Code = 220
	ClosingControl            Code = 221
	ClosingData               Code = 226
	EnteringPassiveMode       Code = 227
	LoggedIn                  Code = 230
	FileActionOK              Code = 250
	PathnameCreated           Code = 257
	UsernameOK                Code = 331
	AwaitingFurtherInfo       Code = 350
	ServiceNotAvailable       Code = 421
	CantOpenDataConnection    Code = 425
	TransferAborted           Code = 426
	FileActionNotTaken        Code = 450
	ActionAbortedLocalError   Code = 451
	SyntaxError               Code = 500
	ParameterSyntaxError      Code = 501
	NotImplemented            Code = 502
	BadCommandSequence        Code = 503
	NotImplementedForParam    Code = 504
	NotLoggedIn               Code = 530
	ActionNotTaken            Code = 550
	FileNameNotAllowed        Code = 553
)

// Line formats a single-line reply terminated by CRLF.
func Line(code Code, message string) string {
	return strconv.Itoa(int(code)) + " " + message + "\r\n"
}

// MultiLine formats a multi-line reply: "NNN-first", then each interior
// line indented with a leading space, then "NNN last". lines must contain
// at least one element.
func MultiLine(code Code, lines []string) string {
	var b strings.Builder
	n := strconv.Itoa(int(code))
	for i, line := range lines {
		switch {
		case i == 0 && len(lines) > 1:
			fmt.Fprintf(&b, "%s-%s\r\n", n, line)
		case i == len(lines)-1:
			fmt.Fprintf(&b, "%s %s\r\n", n, line)
		default:
			fmt.Fprintf(&b, " %s\r\n", line)
		}
	}
	return b.String()
}

// QuotePath doubles internal '"' characters and wraps path in quotes, as
// used by the MKD and PWD replies.
func QuotePath(path string) string {
	return `"` + strings.ReplaceAll(path, `"`, `""`) + `"`
}
