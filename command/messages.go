package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-linker/core"
)

const (
	TypeBeginLink        = "linker.command.link.begin"
	TypeCompleteCallback = "linker.command.callback.complete"
	TypeCompleteLink     = "linker.command.link.complete"
	TypeRefresh          = "linker.command.refresh"
	TypeUnlink           = "linker.command.unlink"
)

type BeginLinkMessage struct {
	Request core.BeginLinkRequest
}

func (BeginLinkMessage) Type() string { return TypeBeginLink }

func (m BeginLinkMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if err := validateScope(m.Request.Scope); err != nil {
		return err
	}
	return nil
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Request.Token) == "" && strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: callback token or code is required")
	}
	return nil
}

type CompleteLinkMessage struct {
	Request core.CompleteLinkRequest
}

func (CompleteLinkMessage) Type() string { return TypeCompleteLink }

func (m CompleteLinkMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if err := validateScope(m.Request.Scope); err != nil {
		return err
	}
	return nil
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Request.LinkID) == "" {
		return fmt.Errorf("command: link id is required")
	}
	return nil
}

type UnlinkMessage struct {
	LinkID string
	Reason string
}

func (UnlinkMessage) Type() string { return TypeUnlink }

func (m UnlinkMessage) Validate() error {
	if strings.TrimSpace(m.LinkID) == "" {
		return fmt.Errorf("command: link id is required")
	}
	return nil
}

func validateScope(scope core.ScopeRef) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
