package ftp

import (
	"fmt"
	"io"
	"net"
	"os"
)

// Store uploads everything read from r to remotePath in binary mode.
//
// Example:
//
//	f, err := os.Open("local.txt")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	err = client.Store("remote.txt", f)
func (c *Client) Store(remotePath string, r io.Reader) error {
	return c.stream("STOR", remotePath, func(data net.Conn) (int64, error) {
		return io.Copy(data, c.meter(r, remotePath))
	})
}

// StoreFrom uploads the local file at localPath.
func (c *Client) StoreFrom(remotePath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Store(remotePath, f)
}

// Retrieve downloads remotePath into w in binary mode.
func (c *Client) Retrieve(remotePath string, w io.Writer) error {
	return c.stream("RETR", remotePath, func(data net.Conn) (int64, error) {
		return io.Copy(w, c.meter(data, remotePath))
	})
}

// RetrieveTo downloads remotePath into localPath, creating or truncating
// it. A failed download leaves no file behind.
func (c *Client) RetrieveTo(remotePath, localPath string) (err error) {
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("ftp: closing %s: %w", localPath, cerr)
		}
		if err != nil {
			os.Remove(localPath)
		}
	}()
	return c.Retrieve(remotePath, f)
}
