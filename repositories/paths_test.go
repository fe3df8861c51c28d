package repositories

import (
	"board-lab/domain"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseRef(t *testing.T) {
	req := require.New(t)

	req.Equal(Ref{Area: AreaMeta}, ParseRef("abc", MetaPath("abc")))
	req.Equal(Ref{Area: AreaSettings}, ParseRef("abc", SettingsPath("abc")))
	req.Equal(Ref{Area: AreaParticipant, Key: "u1"}, ParseRef("abc", ParticipantPath("abc", "u1")))
	req.Equal(Ref{Area: AreaChat, Key: "00000000000000000007"}, ParseRef("abc", ChatParent("abc")+"/00000000000000000007"))
	req.Equal(Ref{Area: AreaElement, Kind: domain.KindShape, Key: "k"}, ParseRef("abc", ElementParent("abc", domain.KindShape)+"/k"))
	req.Equal(Ref{Area: AreaNotification, Recipient: "u2", Key: "n"}, ParseRef("abc", NotificationPath("abc", "u2", "n")))

	// Paths of another session or outside the layout are unknown
	req.Equal(AreaUnknown, ParseRef("abc", MetaPath("abcd")).Area)
	req.Equal(AreaUnknown, ParseRef("abc", "sessions/abc/canvas/circles/1").Area)
}
