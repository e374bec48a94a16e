// internal/action/parser.go
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned for text that is not a well-formed statement.
	ErrSyntax = errors.New("action: syntax error")
	// ErrUnknownVerb is returned for a statement outside the vocabulary.
	ErrUnknownVerb = errors.New("action: unknown verb")
	// ErrArity is returned when a verb receives the wrong number or kind of arguments.
	ErrArity = errors.New("action: invalid arguments")
	// ErrEmpty is returned when a block contains no statements.
	ErrEmpty = errors.New("action: no statement")
)

// Command is one parsed statement.
type Command struct {
	Verb Verb
	Args []string
}

// Arg returns the i-th argument or "" when absent.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// String renders the command in canonical form with quoted arguments.
func (c Command) String() string {
	d, known := Lookup(c.Verb)
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		if known && i < len(d.Params) && d.Params[i].Kind == ParamCount {
			parts[i] = a
			continue
		}
		parts[i] = strconv.Quote(a)
	}
	return fmt.Sprintf("%s(%s)", c.Verb, strings.Join(parts, ", "))
}

// Parse parses text holding exactly one statement.
func Parse(stmt string) (Command, error) {
	cmds, err := ParseBlock(stmt)
	if err != nil {
		return Command{}, err
	}
	if len(cmds) != 1 {
		return Command{}, fmt.Errorf("%w: expected a single statement, found %d", ErrSyntax, len(cmds))
	}
	return cmds[0], nil
}

// ParseBlock parses a sequence of statements separated by newlines or semicolons. Lines
// starting with // are comments.
func ParseBlock(src string) ([]Command, error) {
	p := &parser{src: src}
	var cmds []Command
	for {
		p.skipSeparators()
		if p.eof() {
			break
		}
		cmd, err := p.statement()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)

		p.skipInlineSpace()
		if !p.eof() && !p.atSeparator() && !p.atComment() {
			return nil, p.errorf("unexpected %q after statement", p.peek())
		}
	}
	if len(cmds) == 0 {
		return nil, ErrEmpty
	}
	return cmds, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) atComment() bool {
	return strings.HasPrefix(p.src[p.pos:], "//")
}

func (p *parser) atSeparator() bool {
	c := p.peek()
	return c == ';' || c == '\n' || c == '\r'
}

func (p *parser) skipInlineSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

// skipSeparators skips whitespace, semicolons, and comments up to the next statement.
func (p *parser) skipSeparators() {
	for !p.eof() {
		switch {
		case p.atComment():
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
		case p.atSeparator() || p.peek() == ' ' || p.peek() == '\t':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) statement() (Command, error) {
	start := p.pos
	for !p.eof() && isIdentByte(p.peek(), p.pos == start) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return Command{}, p.errorf("expected a verb, found %q", p.peek())
	}

	p.skipInlineSpace()
	if p.peek() != '(' {
		return Command{}, p.errorf("expected ( after %q", name)
	}
	p.pos++

	args, err := p.arguments()
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Verb: Verb(name), Args: args}
	if err := validate(cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// arguments parses a comma separated list up to and including the closing parenthesis.
func (p *parser) arguments() ([]string, error) {
	args := []string{}
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return args, nil
	}

	for {
		p.skipSpace()
		var (
			arg string
			err error
		)
		switch p.peek() {
		case '"', '\'', '`':
			arg, err = p.quoted()
		default:
			arg, err = p.bare()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			if p.eof() {
				return nil, p.errorf("unterminated argument list")
			}
			return nil, p.errorf("expected , or ) but found %q", p.peek())
		}
	}
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) quoted() (string, error) {
	quote := p.peek()
	start := p.pos
	p.pos++

	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			b.WriteString(unescape(p.peek()))
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	p.pos = start
	return "", p.errorf("unterminated string")
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '\\', '"', '\'', '`':
		return string(c)
	default:
		// CSS escapes such as \: must survive.
		return "\\" + string(c)
	}
}

// bare reads an unquoted argument. Parentheses and brackets may nest, so selectors like
// li:nth-child(2) do not need quotes.
func (p *parser) bare() (string, error) {
	start := p.pos
	depth := 0
loop:
	for !p.eof() {
		switch p.peek() {
		case '(', '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ')':
			if depth == 0 {
				break loop
			}
			depth--
		case ',':
			if depth == 0 {
				break loop
			}
		case '\n':
			break loop
		}
		p.pos++
	}
	arg := strings.TrimSpace(p.src[start:p.pos])
	if arg == "" {
		return "", p.errorf("empty argument")
	}
	return arg, nil
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

func validate(cmd Command) error {
	d, ok := Lookup(cmd.Verb)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVerb, cmd.Verb)
	}
	if len(cmd.Args) != len(d.Params) {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrArity, d.Signature(), len(d.Params), len(cmd.Args))
	}
	for i, param := range d.Params {
		arg := cmd.Args[i]
		switch param.Kind {
		case ParamCount:
			n, err := strconv.Atoi(arg)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: %s: %s must be a non-negative integer, got %q", ErrArity, cmd.Verb, param.Name, arg)
			}
		case ParamSelector, ParamURL:
			if strings.TrimSpace(arg) == "" {
				return fmt.Errorf("%w: %s: %s must not be empty", ErrArity, cmd.Verb, param.Name)
			}
		}
	}
	return nil
}
