package media

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// OpenRecorder opens an Ogg file for an Opus track. It returns nil when path is
// empty or the codec cannot be stored in Ogg.
func OpenRecorder(path, mime string) (PacketWriter, error) {
	if path == "" || !strings.EqualFold(mime, webrtc.MimeTypeOpus) {
		return nil, nil
	}
	w, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		return nil, err
	}
	return w, nil
}
