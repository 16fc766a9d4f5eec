package sources

import (
	"fmt"
	"strings"

	"github.com/geopods/podflow/internal/errs"
)

// azureConnection names a single blob within one of a fixed set of
// whitelisted storage accounts. resource is expected in
// "<account>/<container>/<blob path>" form, with account matching (by
// host) one entry of the trustedAccounts list a ConnectionMaker was built
// from: requests may only name a pre-approved storage account.
type azureConnection struct {
	accountURL        string
	container         string
	blob              string
	connectionString  string
	authorizedToRead  bool
}

func (c *azureConnection) ContainerURL() string { return c.accountURL + "/" + c.container }
func (c *azureConnection) BlobName() string     { return c.blob }
func (c *azureConnection) ConnectionString() string { return c.connectionString }
func (c *azureConnection) IsAuthorizedToRead() bool  { return c.authorizedToRead }

// NewAzureConnectionMaker builds a ConnectionMaker (§6) that resolves a
// request's "account/container/blob" resource path against a fixed list of
// trusted storage account URLs, fed from the --storage-accounts flag
// (cmd/podflow/main.go). The credential for each account is looked up from
// connectionStrings, keyed by account URL, since the module never accepts a
// connection string directly from a request.
func NewAzureConnectionMaker(trustedAccounts []string, connectionStrings map[string]string) ConnectionMaker {
	trusted := make(map[string]bool, len(trustedAccounts))
	for _, a := range trustedAccounts {
		trusted[strings.TrimRight(a, "/")] = true
	}

	return func(resource string) (Connection, error) {
		parts := strings.SplitN(resource, "/", 3)
		if len(parts) != 3 {
			return nil, errs.NewConfigurationError(
				"blob source: resource %q must have the form account/container/blob", resource)
		}
		account, container, blob := parts[0], parts[1], parts[2]

		accountURL := account
		if !strings.Contains(accountURL, "://") {
			accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", account)
		}
		accountURL = strings.TrimRight(accountURL, "/")

		if len(trusted) > 0 && !trusted[accountURL] {
			return nil, errs.NewConfigurationError(
				"blob source: storage account %q is not in the trusted list", accountURL)
		}

		return &azureConnection{
			accountURL:       accountURL,
			container:        container,
			blob:             blob,
			connectionString: connectionStrings[accountURL],
			authorizedToRead: connectionStrings[accountURL] != "",
		}, nil
	}
}
