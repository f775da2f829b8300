// Package ftp implements the client side of the Ventus file transfer
// protocol: a small, line-oriented subset of FTP served by package server.
//
// # Overview
//
// This package provides:
//   - Client, a single control connection with passive (default) or active
//     data connections and a deadline on every blocking call
//   - ParseListLine for the "DIR|FILE\tsize\tname" listing format
//   - RetryPolicy, a fixed-delay bounded retry loop
//   - Remote, which runs each operation on its own connection under a
//     RetryPolicy and is what the mirror package builds on
//
// # Basic Usage
//
//	client, err := ftp.Dial("127.0.0.1:2121", ftp.WithTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("testuser"); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Transfers
//
// Upload a file:
//
//	if err := client.StoreFrom("remote.txt", "local.txt"); err != nil {
//	    log.Fatal(err)
//	}
//
// Download a file:
//
//	if err := client.RetrieveTo("remote.txt", "local.txt"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Retries
//
// Remote treats dial, login, the operation and quit as one unit. A failed
// unit is retried from scratch on a new connection:
//
//	remote := ftp.NewRemote("127.0.0.1:2121", "testuser", ftp.RetryPolicy{
//	    MaxAttempts: 3,
//	    Delay:       500 * time.Millisecond,
//	})
//	entries, err := remote.List(ctx, "/")
//	if errors.Is(err, ftp.ErrExhaustedRetries) {
//	    // all attempts failed; errors.As reaches the last cause
//	}
//
// # Error Handling
//
// A reply with an unexpected code is reported as a *ProtocolError carrying
// the command and the reply:
//
//	if err := client.ChangeDir("/missing"); err != nil {
//	    var pe *ftp.ProtocolError
//	    if errors.As(err, &pe) {
//	        fmt.Printf("%s answered %d: %s\n", pe.Command, pe.Code, pe.Response)
//	    }
//	}
package ftp
