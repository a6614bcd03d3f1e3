package components

import (
	"time"

	"github.com/yohamta/donburi"
)

// ClockData is a singleton holding the wall time of the current frame.
type ClockData struct {
	Elapsed time.Duration // since the previous frame
	Total   time.Duration
	Frame   uint64
}

var Clock = donburi.NewComponentType[ClockData]()
