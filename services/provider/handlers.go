package provider

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/services/worker"
)

// SourceOpener opens the mailbox behind a credential ref inside the worker.
type SourceOpener func(ctx context.Context, credentialRef string) (interfaces.MessageSource, error)

func NewCredentialSourceOpener(credentialsDir string, log logger.Logger) SourceOpener {
	return func(ctx context.Context, credentialRef string) (interfaces.MessageSource, error) {
		credential, err := LoadCredential(credentialsDir, credentialRef)
		if err != nil {
			return nil, apperrors.NewTaskError(err, false)
		}
		switch credential.Provider {
		case enum.EmailProviderGmail:
			source, err := newGmailSource(ctx, credential.Gmail, log)
			if err != nil {
				return nil, apperrors.NewTaskError(err, false)
			}
			return source, nil
		default:
			return newIMAPSource(ctx, credential.IMAP, log)
		}
	}
}

// RegisterHandlers wires the provider actions into a worker registry.
func RegisterHandlers(registry *worker.Registry, open SourceOpener) {
	registry.Register(enum.WorkerActionProviderList, listHandler(open))
	registry.Register(enum.WorkerActionProviderFetch, fetchHandler(open))
}

func listHandler(open SourceOpener) interfaces.WorkerHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args dto.ProviderListArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrap(err, "decode list args")
		}

		source, err := open(ctx, args.CredentialRef)
		if err != nil {
			return nil, err
		}
		defer source.Close()

		pageSize := args.PageSize
		if pageSize <= 0 {
			pageSize = args.MaxResults
		}
		ids, err := source.ListMessageIDs(ctx, args.Query, args.Since, args.MaxResults, pageSize)
		if err != nil {
			return nil, err
		}
		return dto.ProviderListResult{IDs: ids}, nil
	}
}

func fetchHandler(open SourceOpener) interfaces.WorkerHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args dto.ProviderFetchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrap(err, "decode fetch args")
		}

		source, err := open(ctx, args.CredentialRef)
		if err != nil {
			return nil, err
		}
		defer source.Close()

		messages, err := source.GetMessages(ctx, args.IDs)
		if err != nil {
			return nil, err
		}
		return dto.ProviderFetchResult{Messages: messages}, nil
	}
}
