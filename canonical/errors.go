package canonical

import (
	"fmt"

	"github.com/ajanusdev/pcapmath/capture"
)

// UnsupportedProtocolError is returned when the IPv4 header of a frame should be neutralized
// but the frame doesn't carry IPv4.
type UnsupportedProtocolError struct {
	LinkType capture.LinkType
	Reason   string
}

func (err *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("can't neutralize the layer 3 header of a %s frame: %s", err.LinkType, err.Reason)
}
