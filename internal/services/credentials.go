package services

import (
	"context"
	"errors"

	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/logging"
	"github.com/rescale/credvend/internal/models"
)

var (
	errTableLocationMissing  = errors.New("Table storage location not found.")
	errVolumeLocationMissing = errors.New("Volume storage location not found.")
)

// CredentialService is the entry point for temporary table and volume
// credentials. It holds no per-request state and is safe for concurrent use.
type CredentialService struct {
	vendor   cloud.Vendor
	resolver cloud.PrivilegeResolver
	logger   *logging.Logger
}

// NewCredentialService wires a vendor (normally the scheme dispatcher) with
// a privilege resolver. A nil resolver grants SELECT and UPDATE.
func NewCredentialService(vendor cloud.Vendor, resolver cloud.PrivilegeResolver, logger *logging.Logger) *CredentialService {
	if resolver == nil {
		resolver = cloud.DefaultPrivilegeResolver
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CredentialService{vendor: vendor, resolver: resolver, logger: logger}
}

// VendCredentialForTable mints a credential covering the table's storage location.
func (s *CredentialService) VendCredentialForTable(ctx context.Context, table *models.TableInfo, operation string) (*models.GenerateTemporaryTableCredentialResponse, error) {
	const op = "services.VendCredentialForTable"

	if table == nil || table.StorageLocation == "" {
		return nil, cloud.NewPreconditionFailedError(op, errTableLocationMissing)
	}

	resp, err := s.vend(ctx, op, table.StorageLocation, operation)
	if err != nil {
		s.logger.Debug().Str("table", table.FullName()).Err(err).Msg("table credential refused")
		return nil, err
	}
	return resp.ToTableResponse(), nil
}

// VendCredentialForVolume mints a credential covering the volume's storage location.
func (s *CredentialService) VendCredentialForVolume(ctx context.Context, volume *models.VolumeInfo, operation string) (*models.GenerateTemporaryVolumeCredentialResponse, error) {
	const op = "services.VendCredentialForVolume"

	if volume == nil || volume.StorageLocation == "" {
		return nil, cloud.NewPreconditionFailedError(op, errVolumeLocationMissing)
	}

	resp, err := s.vend(ctx, op, volume.StorageLocation, operation)
	if err != nil {
		s.logger.Debug().Str("volume", volume.FullName()).Err(err).Msg("volume credential refused")
		return nil, err
	}
	return resp.ToVolumeResponse(), nil
}

func (s *CredentialService) vend(ctx context.Context, op, location, operation string) (*cloud.CredentialResponse, error) {
	privs, err := s.resolver(ctx, operation)
	if err != nil {
		if cloud.KindOf(err) != "" {
			return nil, err
		}
		return nil, cloud.NewInvalidArgumentError(op, err)
	}

	cc, err := cloud.NewContext(location, privs)
	if err != nil {
		return nil, err
	}
	return s.vendor.Vend(ctx, cc)
}
