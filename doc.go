// Package annul archives Debian source packages into compact, searchable
// containers.
//
// A source file (an upstream tarball, a Debian packaging tarball or a diff)
// is fetched, unpacked recursively through nested archives and compressed
// streams, and written as one zstd-compressed container: a sequence of
// frames, one per entry of the unpacked tree. Each frame carries the entry's
// full path (ancestors joined by NUL) and expansion status, followed by its
// content with binary runs reduced to short markers. Containers are written
// once and never replaced.
//
// # Quick Start
//
// Archive every file listed by a source package manifest:
//
//	a, err := annul.New(annul.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	results, err := a.Archive(ctx,
//	    "https://deb.debian.org/debian/pool/main/h/hello/hello_2.10-3.dsc",
//	    "/srv/annul")
//
// Archive a single local file:
//
//	res, err := a.ArchiveFile(ctx, "hello_2.10.orig.tar.gz", "/srv/annul")
//
// Read a container back:
//
//	c, err := annul.OpenContainer("/srv/annul/hello_2.10.orig.tar.gz.annul")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	for {
//	    h, err := c.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// # Failures
//
// Entries that cannot be expanded are recorded in the container with a
// status rather than failing the file. A file fails only when its top level
// is not an archive or when I/O fails; failures are reported per file as
// *FileError, and a failed file does not stop the rest of a package.
package annul
