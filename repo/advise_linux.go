package repo

import (
	"log"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bobg/carvpath"
)

type fadvisor struct {
	fd   int
	name string
}

func newFadvisor(f *os.File) carvpath.Advisor {
	return fadvisor{fd: int(f.Fd()), name: f.Name()}
}

// Advise implements carvpath.Advisor.
// Wanted ranges go back to normal caching,
// unwanted ones are dropped from the page cache.
func (a fadvisor) Advise(offset, size uint64, want bool) {
	advice := unix.FADV_DONTNEED
	if want {
		advice = unix.FADV_NORMAL
	}
	if err := unix.Fadvise(a.fd, int64(offset), int64(size), advice); err != nil {
		log.Printf("fadvise %s [%d, +%d): %s", a.name, offset, size, err)
	}
}
