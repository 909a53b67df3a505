package parser

import (
	"context"
	"fmt"
	"regexp"

	"github.com/opentracing/opentracing-go"

	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type contentParser struct {
	log        logger.Logger
	quarantine interfaces.StorageService
}

// NewContentParser returns the parser used by the pipeline. quarantine may be nil; when set, raw MIME
// that cannot be parsed is copied there for later inspection.
func NewContentParser(log logger.Logger, quarantine interfaces.StorageService) interfaces.ContentParser {
	return &contentParser{log: log, quarantine: quarantine}
}

func (p *contentParser) ExtractMetadata(ctx context.Context, raw models.RawMessage) (models.CanonicalMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentParser.ExtractMetadata")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, raw.ID)
	span.LogKV("preparsed", raw.Preparsed)

	var msg models.CanonicalMessage
	var err error
	if raw.Preparsed {
		msg, err = FromPreparsed(raw)
	} else {
		msg, err = FromRawMIME(raw)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		p.quarantineRaw(ctx, raw)
		return models.CanonicalMessage{}, err
	}
	return msg, nil
}

func (p *contentParser) quarantineRaw(ctx context.Context, raw models.RawMessage) {
	if p.quarantine == nil || len(raw.Raw) == 0 {
		return
	}

	userID := utils.GetUserIdFromContext(ctx)
	if userID == "" {
		userID = "unknown"
	}
	key := fmt.Sprintf("quarantine/%s/%s/%s.eml",
		unsafeKeyChars.ReplaceAllString(userID, "_"),
		utils.Now().Format("2006-01-02"),
		unsafeKeyChars.ReplaceAllString(raw.ID, "_"),
	)
	if err := p.quarantine.Upload(ctx, key, raw.Raw, "message/rfc822"); err != nil {
		p.log.Warnf("Failed to quarantine message %s: %v", raw.ID, err)
		return
	}
	p.log.Infof("Quarantined unparseable message %s to %s", raw.ID, key)
}
