//go:build !linux

package repo

import (
	"os"

	"github.com/bobg/carvpath"
)

func newFadvisor(*os.File) carvpath.Advisor {
	return carvpath.AdviceFunc(func(uint64, uint64, bool) {})
}
