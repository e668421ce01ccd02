package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-linker/core"
)

// MutatingService is the slice of the core service the commands drive.
type MutatingService interface {
	BeginLink(ctx context.Context, req core.BeginLinkRequest) (core.BeginLinkResponse, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	CompleteLink(ctx context.Context, req core.CompleteLinkRequest) (core.LinkCompletion, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.RefreshResult, error)
	Unlink(ctx context.Context, linkID string, reason string) error
}

type BeginLinkCommand struct {
	service MutatingService
}

func NewBeginLinkCommand(service MutatingService) *BeginLinkCommand {
	return &BeginLinkCommand{service: service}
}

func (c *BeginLinkCommand) Execute(ctx context.Context, msg BeginLinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: begin link service is required")
	}
	out, err := c.service.BeginLink(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.HandleCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteLinkCommand struct {
	service MutatingService
}

func NewCompleteLinkCommand(service MutatingService) *CompleteLinkCommand {
	return &CompleteLinkCommand{service: service}
}

func (c *CompleteLinkCommand) Execute(ctx context.Context, msg CompleteLinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: complete link service is required")
	}
	out, err := c.service.CompleteLink(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.Refresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UnlinkCommand struct {
	service MutatingService
}

func NewUnlinkCommand(service MutatingService) *UnlinkCommand {
	return &UnlinkCommand{service: service}
}

func (c *UnlinkCommand) Execute(ctx context.Context, msg UnlinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: unlink service is required")
	}
	return c.service.Unlink(ctx, msg.LinkID, msg.Reason)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
