// Package mirror keeps a local directory tree and a remote one in step
// using only protocol operations.
//
// A sync pass has two phases. Phase one walks the local tree: each remote
// directory is created if missing, and each local file is uploaded when the
// remote copy is absent or has a different size. Phase two walks the
// remote tree: missing local directories are created and remote files that
// are absent locally, or differ in size, are downloaded. Nothing is ever
// deleted on either side.
//
// Change detection is by size only, so two files of equal size but
// different content are considered in sync.
//
//	remote := ftp.NewRemote("127.0.0.1:2121", "testuser", ftp.DefaultRetryPolicy())
//	engine, err := mirror.New(remote, "./photos", "/photos")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := engine.Sync(ctx)
//
// Live mode re-runs the single-file upload step for paths that change,
// either from any producer of paths (Watch) or from filesystem
// notifications on the local root (WatchLocal).
package mirror
