package chat

import (
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// Commit appends the run's answer to the session. Blank text commits
// nothing, and a run id is committed at most once.
func (c *Chat) Commit(sess *session.Session, res Result) bool {
	ok := sess.CommitAssistant(res.Text, res.Attachments, res.RunID)
	c.log.Debug().
		Str("session_id", sess.ID).
		Str("run_id", res.RunID).
		Bool("committed", ok).
		Int("turns", sess.Len()).
		Msg("commit")
	return ok
}
