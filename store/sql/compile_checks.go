package sqlstore

import "github.com/goliatone/go-linker/core"

var (
	_ core.LinkStore              = (*LinkStore)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
