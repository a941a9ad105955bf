package cleanup

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"
)

// BulkDeleteLimit is the most messages one bulk-delete request accepts.
const BulkDeleteLimit = 100

// DeleteMode controls how messages are removed.
type DeleteMode int

const (
	// DeleteModeBulkPreferred uses bulk deletion when possible.
	DeleteModeBulkPreferred DeleteMode = iota
	// DeleteModeSingleOnly deletes each message individually.
	DeleteModeSingleOnly
)

// DeleteOptions configures deletion behavior.
type DeleteOptions struct {
	Mode DeleteMode
	// OnDeleteError is called once per message that could not be removed.
	OnDeleteError func(messageID string, err error)
}

// DeleteMessages removes messages from a channel and returns deleted and
// failed counts. A failed batch does not stop the remaining ones; a
// cancelled ctx does.
func DeleteMessages(ctx context.Context, session *discordgo.Session, channelID string, messageIDs []string, opts DeleteOptions) (deleted, failed int) {
	if session == nil || channelID == "" || len(messageIDs) == 0 {
		return 0, 0
	}

	size := BulkDeleteLimit
	if opts.Mode == DeleteModeSingleOnly {
		size = 1
	}
	ids := slices.DeleteFunc(slices.Clone(messageIDs), func(id string) bool { return id == "" })
	for chunk := range slices.Chunk(ids, size) {
		if ctx.Err() != nil {
			return deleted, failed
		}
		var err error
		if len(chunk) == 1 {
			err = session.ChannelMessageDelete(channelID, chunk[0], discordgo.WithContext(ctx))
		} else {
			err = session.ChannelMessagesBulkDelete(channelID, chunk, discordgo.WithContext(ctx))
		}
		if err != nil {
			failed += len(chunk)
			if opts.OnDeleteError != nil {
				for _, id := range chunk {
					opts.OnDeleteError(id, err)
				}
			}
			continue
		}
		deleted += len(chunk)
	}
	return deleted, failed
}
