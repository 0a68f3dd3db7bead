package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qiuzhanghua/fs-proxy/internal/domain/audit"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/id"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// RecentAudit returns the newest audit records. With ?after=<record id> only
// records written after that one are returned, so a client can poll.
func (h *Handlers) RecentAudit(c *gin.Context) {
	rec := h.files.Recorder()
	if !rec.Enabled() {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "audit recording is disabled", Kind: "NotFound"})
		return
	}

	limit := defaultAuditLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(c, "audit", "", "limit must be a positive integer, got %q", v)
			return
		}
		limit = min(n, maxAuditLimit)
	}

	after := c.Query("after")
	if after != "" {
		if prefix, _, err := id.Split(after); err != nil || prefix != id.RecordPrefix {
			badRequest(c, "audit", "", "after must be an audit record id, got %q", after)
			return
		}
	}

	records, err := rec.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if after != "" {
		records = newerThan(records, after)
	}
	if records == nil {
		records = []audit.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// newerThan keeps the records whose id sorts after cursor. Record ids are
// ULIDs, so the order is creation order.
func newerThan(records []audit.Record, cursor string) []audit.Record {
	out := records[:0]
	for _, r := range records {
		if r.ID > cursor {
			out = append(out, r)
		}
	}
	return out
}
