package ftp

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EntryType is the kind of a listed entry.
type EntryType string

const (
	EntryTypeFile EntryType = "file"
	EntryTypeDir  EntryType = "dir"
)

// Entry is one line of a LIST reply.
type Entry struct {
	Name string
	Type EntryType
	Size int64
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Type == EntryTypeDir
}

// ErrInvalidListLine is returned by ParseListLine for lines that are not
// in the "KIND\tsize\tname" format.
var ErrInvalidListLine = errors.New("ftp: invalid listing line")

// ParseListLine parses one listing line of the form
//
//	DIR\t4096\tphotos
//	FILE\t42\treport.txt
//
// The name is everything after the second tab, so it may contain spaces
// and further tabs. A trailing CR/LF is ignored.
func ParseListLine(line string) (*Entry, error) {
	line = strings.TrimRight(line, "\r\n")

	kind, rest, ok := strings.Cut(line, "\t")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidListLine, line)
	}
	sizeStr, name, ok := strings.Cut(rest, "\t")
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidListLine, line)
	}

	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: bad size in %q", ErrInvalidListLine, line)
	}

	entry := &Entry{Name: name, Size: size}
	switch kind {
	case "DIR":
		entry.Type = EntryTypeDir
	case "FILE":
		entry.Type = EntryTypeFile
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidListLine, kind)
	}
	return entry, nil
}

// List returns the entries of the specified directory, in the order the
// server sent them. If path is empty, it lists the current directory.
// Lines that do not parse are skipped.
//
// Example:
//
//	entries, err := client.List("/pub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, entry := range entries {
//	    fmt.Printf("%s: %d bytes (%s)\n", entry.Name, entry.Size, entry.Type)
//	}
func (c *Client) List(path string) ([]*Entry, error) {
	var args []string
	if path != "" {
		args = append(args, path)
	}
	data, err := c.openTransfer("LIST", args...)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	scanner := bufio.NewScanner(data)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := ParseListLine(line)
		if err != nil {
			c.logger.WithError(err).Debug("skipping listing line")
			continue
		}
		entries = append(entries, entry)
	}
	readErr := scanner.Err()

	if err := c.closeTransfer(data); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("ftp: reading listing: %w", readErr)
	}
	return entries, nil
}

// ChangeDir changes the current working directory.
func (c *Client) ChangeDir(path string) error {
	_, err := c.expectCode(250, "CWD", path)
	return err
}

// ChangeDirToParent moves to the parent directory. At "/" it is a no-op.
func (c *Client) ChangeDirToParent() error {
	_, err := c.expectCode(200, "CDUP")
	return err
}

// CurrentDir returns the current working directory.
func (c *Client) CurrentDir() (string, error) {
	resp, err := c.expectCode(257, "PWD")
	if err != nil {
		return "", err
	}
	return parseQuotedPath(resp.Message)
}

// MakeDir creates a new directory and returns the path the server reports.
func (c *Client) MakeDir(path string) (string, error) {
	resp, err := c.expectCode(257, "MKD", path)
	if err != nil {
		return "", err
	}
	return parseQuotedPath(resp.Message)
}

// RemoveDir removes an empty directory.
func (c *Client) RemoveDir(path string) error {
	_, err := c.expectCode(250, "RMD", path)
	return err
}

// parseQuotedPath extracts the path from a 257 reply such as
// `"/a/b" is the current directory.` The server quotes with Go %q, so
// escapes are undone with strconv.Unquote.
func parseQuotedPath(msg string) (string, error) {
	start := strings.Index(msg, "\"")
	if start == -1 {
		return "", fmt.Errorf("invalid 257 response: %s", msg)
	}
	end := start + 1
	for end < len(msg) {
		if msg[end] == '\\' {
			end += 2
			continue
		}
		if msg[end] == '"' {
			break
		}
		end++
	}
	if end >= len(msg) {
		return "", fmt.Errorf("invalid 257 response: %s", msg)
	}

	quoted := msg[start : end+1]
	if p, err := strconv.Unquote(quoted); err == nil {
		return p, nil
	}
	return quoted[1 : len(quoted)-1], nil
}
