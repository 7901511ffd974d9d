package alumnicsv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/validation"
)

var fixedNow = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func ptr(v int) *int { return &v }

func newImporter(repo profile.Repository) *Importer {
	return NewImporter(repo, validation.New(registration.NewIDFormat("")), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seed(repo *profile.MemoryRepository) {
	repo.Put(profile.Profile{
		RegistrationID: "BGHSA-2010-00002",
		Email:          "rahul@example.com",
		FirstName:      " Rahul ",
		LastName:       "Sen",
		Bio:            "Likes \"quotes\", commas\nand newlines",
		LastClass:      ptr(12),
		YearOfLeaving:  ptr(2010),
		IsDeceased:     true,
		DeceasedYear:   ptr(2021),
		Role:           "alumni_premium",
	})
	repo.Put(profile.Profile{
		RegistrationID:    "BGHSA-2008-00001",
		OldRegistrationID: "OLD-17",
		Email:             "asha@example.com",
		FirstName:         "Asha",
		LastName:          "Roy",
		LinkedInURL:       "https://linkedin.com/in/asha",
	})
}

func TestExport(t *testing.T) {
	repo := profile.NewMemoryRepository(func() time.Time { return fixedNow })
	seed(repo)

	var buf bytes.Buffer
	n, err := Export(context.Background(), repo, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Header, rows[0])
	// ordered by registration id
	assert.Equal(t, "BGHSA-2008-00001", rows[1][1])
	assert.Equal(t, "alumni_member", rows[1][19])
	assert.Equal(t, "FALSE", rows[1][20])
	assert.Equal(t, "", rows[1][8])

	assert.Equal(t, "Rahul", rows[2][5])
	assert.Equal(t, "12", rows[2][8])
	assert.Equal(t, "TRUE", rows[2][20])
	assert.Equal(t, "2021", rows[2][21])
	assert.Equal(t, "Likes \"quotes\", commas\nand newlines", rows[2][16])
	assert.Equal(t, "", rows[2][22])
}

func TestExport_NoRows(t *testing.T) {
	_, err := Export(context.Background(), profile.NewMemoryRepository(nil), io.Discard)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := profile.NewMemoryRepository(func() time.Time { return fixedNow })
	seed(src)

	var buf bytes.Buffer
	_, err := Export(ctx, src, &buf)
	require.NoError(t, err)

	dst := profile.NewMemoryRepository(func() time.Time { return fixedNow })
	res, err := newImporter(dst).Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)

	for _, id := range []string{"BGHSA-2010-00002", "BGHSA-2008-00001"} {
		want, err := src.GetByRegistrationID(ctx, id)
		require.NoError(t, err)
		got, err := dst.GetByRegistrationID(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, FromProfile(want), FromProfile(got), id)
		assert.Equal(t, profile.ImportSourceCSV, got.ImportSource)
		assert.NotNil(t, got.ImportedAt)
	}

	// a second import of the same file updates in place
	res, err = newImporter(dst).Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Updated)
}

func TestImport_RowErrors(t *testing.T) {
	input := "\ufeff" + strings.Join(Header, ",") + "\n" +
		"OLD-1,BGHSA-2011-00003,a@example.com,,,Ana,,Das,10,2011,,,,,,,,,,,FALSE,,\n" +
		",,b@example.com,,,Bo,,Roy,,,,,,,,,,,,,,,\n" +
		",BGHSA-2011-00004,c@example.com,,,Cy,,Roy,ten,,,,,,,,,,,,,,\n" +
		",BGHSA-2011-00005,d@example.com,,,Di,,Roy,,,,,,,,,,,,chief,,,\n" +
		",BGHSA-2011-00006,not-an-email,,,Ed,,Roy,,,,,,,,,,,,,,,\n" +
		",BGHSA-2011-00007,,,,Fa,,Roy,,,,,,,,,,,, SUPER_ADMIN ,yes,,\n"

	repo := profile.NewMemoryRepository(func() time.Time { return fixedNow })
	res, err := newImporter(repo).Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 4)
	assert.Equal(t, RowError{Row: 3, Message: "Registration Number is a required field"}, res.Errors[0])
	assert.Equal(t, 4, res.Errors[1].Row)
	assert.Contains(t, res.Errors[1].Message, "not a whole number")
	assert.Equal(t, RowError{Row: 5, Message: "Role is not a valid role"}, res.Errors[2])
	assert.Equal(t, RowError{Row: 6, Message: "Email must be a valid email address"}, res.Errors[3])

	p, err := repo.GetByRegistrationID(context.Background(), "BGHSA-2011-00007")
	require.NoError(t, err)
	assert.Equal(t, "super_admin", p.Role)
	assert.True(t, p.IsDeceased)
	assert.Equal(t, "Fa Roy", p.FullName)
}

func TestImport_Empty(t *testing.T) {
	_, err := newImporter(profile.NewMemoryRepository(nil)).Import(context.Background(), strings.NewReader("\ufeff  \n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

type failingRepo struct {
	*profile.MemoryRepository
}

func (failingRepo) UpsertImported(context.Context, *profile.Profile) (bool, error) {
	return false, errors.New("db down")
}

func TestImport_StorageFailureAborts(t *testing.T) {
	input := strings.Join(Header, ",") + "\n" + ",BGHSA-2011-00003,,,,Ana,,Das,,,,,,,,,,,,,,,\n"

	_, err := newImporter(failingRepo{profile.NewMemoryRepository(nil)}).Import(context.Background(), strings.NewReader(input))
	assert.ErrorContains(t, err, "row 2")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "alumni-export-2025-07-01.csv", FileName(fixedNow))
}

func TestFlagAndOptionalInt(t *testing.T) {
	var f Flag
	require.NoError(t, f.UnmarshalCSV(" True "))
	assert.True(t, bool(f))
	assert.Error(t, f.UnmarshalCSV("maybe"))

	var o OptionalInt
	require.NoError(t, o.UnmarshalCSV(""))
	assert.Nil(t, o.Ptr())
	require.NoError(t, o.UnmarshalCSV(" 2010 "))
	assert.Equal(t, 2010, *o.Ptr())
}
