package pipeline

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/config"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/export"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/fetcher"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/session"
	"github.com/ginjaninja78/qbo-sales-receipts/pkg/utils"
)

// errNoConfigFile is returned by the rotation callback of a config that was
// not loaded from a file.
var errNoConfigFile = errors.New("config was not loaded from a file; rotated refresh token not saved")

// NewSession creates the session manager for cfg. Rotated refresh tokens
// are written back to the config file.
func NewSession(cfg *config.Config, client *http.Client, logger logrus.FieldLogger) *session.Manager {
	return session.New(cfg.Credentials(), session.Options{
		TokenURL:     cfg.TokenURL,
		HTTPClient:   client,
		ExpiryMargin: cfg.ExpiryMargin,
		Logger:       logger,
		OnRotate: func(refreshToken string) error {
			if cfg.Path() == "" {
				return errNoConfigFile
			}
			if err := config.SaveRefreshToken(cfg.Path(), refreshToken); err != nil {
				return err
			}
			cfg.RefreshToken = refreshToken
			logger.WithField("file", cfg.Path()).Info("rotated refresh token saved")
			return nil
		},
	})
}

// FromConfig builds a Pipeline from a loaded configuration.
//
// PARAMETERS:
//   - cfg: The validated configuration.
//   - opts: Run options. The transformation and debug fields are taken from
//     cfg; OutputFile defaults to cfg.OutputFile.
//   - logger: The run logger.
//
// RETURNS:
//   - The pipeline.
//   - An error if the output format is unsupported.
func FromConfig(cfg *config.Config, format string, opts Options, logger logrus.FieldLogger) (*Pipeline, error) {
	if format == "" {
		format = cfg.OutputFormat
	}
	sink, err := export.New(format)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}
	auth := NewSession(cfg, client, logger)

	// fetcher.Options uses 0 for its default and a negative value for none.
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = -1
	}
	f := fetcher.New(fetcher.Options{
		BaseURL:      cfg.APIBase(),
		RealmID:      cfg.RealmID,
		PageSize:     cfg.PageSize,
		MaxRetries:   retries,
		Backoff:      cfg.RetryBackoff,
		MinorVersion: cfg.MinorVersion,
		HTTPClient:   client,
		Logger:       logger,
	})

	if opts.OutputFile == "" {
		opts.OutputFile = cfg.OutputFile
	}
	opts.AddressDebug = opts.AddressDebug || cfg.AddressDebug
	opts.ReceiptDebug = opts.ReceiptDebug || cfg.ReceiptDebug
	opts.StrictValidation = opts.StrictValidation || cfg.StrictValidation
	opts.DetailStates = cfg.DetailStates
	opts.ShippingItemID = cfg.ShippingItemID
	opts.PriceConflict = cfg.PriceConflict
	opts.Logger = logger

	return New(auth, f, sink, utils.NewArtifactWriter(cfg.DebugDir), opts), nil
}
