package session

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// Row is one selectable entry of the peer directory.
type Row struct {
	Index  int
	PeerID string
	Label  string
	Active bool
}

const labelWidth = 24

// Rows projects peers into directory rows in the order they were
// returned. Duplicates are kept.
func Rows(peers []string, active string) []Row {
	return lo.Map(peers, func(id string, i int) Row {
		return Row{
			Index:  i,
			PeerID: id,
			Label:  shortLabel(id),
			Active: id != "" && id == active,
		}
	})
}

func shortLabel(id string) string {
	r := []rune(id)
	if len(r) <= labelWidth {
		return id
	}
	half := (labelWidth - 1) / 2
	return string(r[:half]) + "…" + string(r[len(r)-half:])
}

// DirectoryView tracks the highlighted row and turns a selection into an
// active conversation.
type DirectoryView struct {
	coord  *Coordinator
	cursor int
}

func NewDirectoryView(coord *Coordinator) *DirectoryView {
	return &DirectoryView{coord: coord}
}

func (v *DirectoryView) Cursor() int {
	return v.cursor
}

// Move shifts the cursor by delta, clamped to the rows on screen.
func (v *DirectoryView) Move(delta, rows int) {
	if rows <= 0 {
		v.cursor = 0
		return
	}
	v.cursor = lo.Clamp(v.cursor+delta, 0, rows-1)
}

// Select activates the conversation under the cursor.
func (v *DirectoryView) Select(ctx context.Context, rows []Row) (string, error) {
	if v.cursor < 0 || v.cursor >= len(rows) {
		return "", fmt.Errorf("no peer at row %d", v.cursor)
	}
	peer := rows[v.cursor].PeerID
	return peer, v.coord.SelectConversation(ctx, peer)
}
