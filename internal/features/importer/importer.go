// Package importer provisions accounts in bulk from a pipe-delimited file,
// bypassing the dialogue.
package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tribebot-backend/internal/common/apperrors"
	"tribebot-backend/internal/common/i18n"
	"tribebot-backend/internal/common/logger"
	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
	accountservice "tribebot-backend/internal/features/account/service"
)

// Importer reads records of the form
//
//	externalId | displayName | tribeName [| locale]
//
// one per line, and provisions an account for each well-formed record.
// Records are fault-isolated: a malformed or unresolvable line is skipped
// with a warning and never aborts the run.
type Importer struct {
	provisioner accountservice.ProvisioningService
	tribes      map[string]int64
	superusers  map[int64]struct{}
	locales     *i18n.Bundle
}

// Report summarizes one import run.
type Report struct {
	Lines   int
	Created int
	Skipped int
}

// New builds an importer. tribes maps lower-cased tribe names to ids;
// superuserIDs are provisioned with the admin role.
func New(provisioner accountservice.ProvisioningService, tribes map[string]int64, superuserIDs []int64, locales *i18n.Bundle) *Importer {
	superusers := make(map[int64]struct{}, len(superuserIDs))
	for _, id := range superuserIDs {
		superusers[id] = struct{}{}
	}
	normalized := make(map[string]int64, len(tribes))
	for name, id := range tribes {
		normalized[strings.ToLower(name)] = id
	}
	return &Importer{
		provisioner: provisioner,
		tribes:      normalized,
		superusers:  superusers,
		locales:     locales,
	}
}

// RunFile imports all records from the file at path. A missing file or any
// I/O failure aborts the whole run and propagates.
func (i *Importer) RunFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, apperrors.Wrapf(err, apperrors.ErrCodeFileAccess, "cannot open import file %s", path).
			WithOperation("import")
	}
	defer f.Close()
	return i.Run(ctx, f)
}

// Run imports all records from r.
func (i *Importer) Run(ctx context.Context, r io.Reader) (Report, error) {
	var report Report
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		report.Lines++
		created, err := i.importLine(ctx, line, lineNo)
		if err != nil {
			return report, err
		}
		if created {
			report.Created++
		} else {
			report.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return report, apperrors.Wrap(err, apperrors.ErrCodeFileAccess, "import read failed").
			WithOperation("import")
	}

	logger.Info().
		Int("lines", report.Lines).
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Msg("Bulk import finished")
	return report, nil
}

func (i *Importer) importLine(ctx context.Context, line string, lineNo int) (bool, error) {
	fields := strings.Split(line, "|")
	for idx := range fields {
		fields[idx] = strings.TrimSpace(fields[idx])
	}
	if len(fields) < 3 {
		logger.Warn().Int("line", lineNo).Str("record", line).Msg("Skipping malformed record")
		return false, nil
	}

	externalID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		logger.Warn().Int("line", lineNo).Str("record", line).Msg("Skipping record with non-numeric external id")
		return false, nil
	}
	displayName := fields[1]
	tribeName := fields[2]

	tribeID, ok := i.tribes[strings.ToLower(tribeName)]
	if !ok {
		logger.Warn().Int("line", lineNo).Str("tribe_name", tribeName).Msg("Skipping record with unknown tribe")
		return false, nil
	}

	exists, err := i.provisioner.Exists(ctx, externalID)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Warn().Int("line", lineNo).Int64("external_id", externalID).Msg("Account already exists, skipping")
		return false, nil
	}

	role := models.RoleUser
	if _, ok := i.superusers[externalID]; ok {
		role = models.RoleAdmin
	}

	// The locale column is passed through only when supported; otherwise
	// the provisioning default applies.
	var locale string
	if len(fields) > 3 && i.locales.Supported(fields[3]) {
		locale = fields[3]
	}

	_, err = i.provisioner.CreateAccount(ctx, accountservice.CreateAccountParams{
		ExternalID:  externalID,
		DisplayName: displayName,
		Role:        role,
		TribeID:     tribeID,
		Locale:      locale,
	})
	if err != nil {
		// A concurrent writer may have won since the existence check.
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			logger.Warn().Int("line", lineNo).Int64("external_id", externalID).Msg("Account created concurrently, skipping")
			return false, nil
		}
		return false, fmt.Errorf("import line %d: %w", lineNo, err)
	}
	return true, nil
}
