package shell

import (
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/syntax"
)

const specialChars = " \t\n\"'`$\\*?[]{}~;&|<>()#!"

// BuildCall turns an argument vector into a call expression. Every argument stays a single
// word; arguments with shell metacharacters are single-quoted so they are neither split
// nor globbed.
func BuildCall(args []string) (*syntax.CallExpr, error) {
	if len(args) == 0 {
		return nil, eris.New("empty command")
	}

	cmd := new(syntax.CallExpr)
	cmd.Args = make([]*syntax.Word, len(args))
	for a, arg := range args {
		var wordPart syntax.WordPart

		if arg == "" || strings.ContainsAny(arg, specialChars) {
			node := new(syntax.SglQuoted)
			node.Value = arg
			wordPart = node
		} else {
			node := new(syntax.Lit)
			node.Value = arg
			wordPart = node
		}

		cmd.Args[a] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	return cmd, nil
}

// Format renders args the way a user would type them in a POSIX shell.
func Format(args []string) string {
	call, err := BuildCall(args)
	if err != nil {
		return ""
	}

	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	if err := printer.Print(&strBuffer, call); err != nil {
		return strings.Join(args, " ")
	}

	return strBuffer.String()
}
