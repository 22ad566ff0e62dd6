package abc

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Wire format. Requests are a 5-byte opcode optionally followed by an
// argument and a terminating '$'; replies are exactly 5 bytes.
const (
	opNew = "$new$"
	opCmd = "$cmd$"
	opEnd = "$end$"
	opBye = "$bye$"

	replyOK  = "$ok_$"
	replyErr = "$err$"

	opcodeLen  = 5
	terminator = '$'
)

var (
	// ErrProtocol marks pipe failures and malformed replies.
	ErrProtocol = errors.New("abc: protocol failure")
	// ErrRejected marks requests the child answered with an error reply.
	ErrRejected = errors.New("abc: request rejected")
)

// Op is a request opcode.
type Op int

const (
	OpUnknown Op = iota
	OpNew
	OpCmd
	OpEnd
	OpBye
)

var opcodes = map[string]Op{
	opNew: OpNew,
	opCmd: OpCmd,
	opEnd: OpEnd,
	opBye: OpBye,
}

func (o Op) String() string {
	for text, op := range opcodes {
		if op == o {
			return text
		}
	}
	return "$???$"
}

func (o Op) hasArg() bool {
	return o == OpNew || o == OpCmd
}

// Frame is one request.
type Frame struct {
	Op  Op
	Arg string
	// Raw holds the opcode bytes as received, for diagnostics.
	Raw string
}

// EncodeFrame renders f in wire form. Arguments may not contain the
// terminator.
func EncodeFrame(f Frame) ([]byte, error) {
	if f.Op == OpUnknown {
		return nil, errors.New("abc: cannot encode unknown opcode")
	}
	if strings.ContainsRune(f.Arg, terminator) {
		return nil, errors.Errorf("abc: argument %q contains %q", f.Arg, terminator)
	}
	if !f.Op.hasArg() {
		return []byte(f.Op.String()), nil
	}
	return []byte(f.Op.String() + f.Arg + string(terminator)), nil
}

// FrameReader decodes requests from a byte stream.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next reads one frame. An unrecognised opcode yields a frame with
// OpUnknown after consuming exactly the 5 opcode bytes, so the reader
// resynchronises on the bytes that follow.
func (fr *FrameReader) Next() (Frame, error) {
	var head [opcodeLen]byte
	if _, err := io.ReadFull(fr.r, head[:]); err != nil {
		return Frame{}, err
	}
	raw := string(head[:])
	op, ok := opcodes[raw]
	if !ok {
		return Frame{Op: OpUnknown, Raw: raw}, nil
	}
	f := Frame{Op: op, Raw: raw}
	if !op.hasArg() {
		return f, nil
	}
	arg, err := fr.r.ReadString(terminator)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	f.Arg = arg[:len(arg)-1]
	return f, nil
}

// WriteReply sends a success or failure reply.
func WriteReply(w io.Writer, ok bool) error {
	reply := replyErr
	if ok {
		reply = replyOK
	}
	_, err := io.WriteString(w, reply)
	return err
}

// ReadReply blocks for exactly one 5-byte reply.
func ReadReply(r io.Reader) (bool, error) {
	var buf [opcodeLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, errors.Wrap(ErrProtocol, err.Error())
	}
	switch string(buf[:]) {
	case replyOK:
		return true, nil
	case replyErr:
		return false, nil
	}
	return false, errors.Wrapf(ErrProtocol, "unexpected reply %q", buf[:])
}
