package profile

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAllPagesThroughEveryProfile(t *testing.T) {
	repo := NewMemoryRepository(nil)
	for i := ExportPageSize + 5; i > 0; i-- {
		repo.Put(Profile{RegistrationID: fmt.Sprintf("BGHSA-2000-%05d", i)})
	}

	all, err := ListAll(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, all, ExportPageSize+5)
	assert.Equal(t, "BGHSA-2000-00001", all[0].RegistrationID)
	assert.Equal(t, fmt.Sprintf("BGHSA-2000-%05d", ExportPageSize+5), all[len(all)-1].RegistrationID)
}

func TestMemoryRepository_UpsertImported(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository(func() time.Time { return now })

	p := &Profile{RegistrationID: "BGHSA-2005-00010", FirstName: "Old"}
	created, err := repo.UpsertImported(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)
	firstID := p.ID

	created, err = repo.UpsertImported(ctx, &Profile{RegistrationID: "BGHSA-2005-00010", FirstName: "New"})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.GetByRegistrationID(ctx, "bghsa-2005-00010")
	require.NoError(t, err)
	assert.Equal(t, firstID, got.ID)
	assert.Equal(t, "New", got.FirstName)
	assert.Equal(t, ImportSourceCSV, got.ImportSource)

	imported, err := repo.ListImported(ctx, now)
	require.NoError(t, err)
	assert.Len(t, imported, 1)

	imported, err = repo.ListImported(ctx, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, imported)
}

func TestMemoryRepository_MarkNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)
	require.NoError(t, repo.SaveVerification(ctx, &Verification{UserID: "u1", PDFGenerationStatus: PDFPending}))

	first, err := repo.MarkNotified(ctx, "u1", time.Unix(100, 0))
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkNotified(ctx, "u1", time.Unix(200, 0))
	require.NoError(t, err)
	assert.False(t, second)

	v, err := repo.GetVerification(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), v.NotificationSentAt.Unix())

	// an identical resubmission keeps the notification stamp
	require.NoError(t, repo.SaveVerification(ctx, &Verification{UserID: "u1", PDFGenerationStatus: PDFPending}))
	v, err = repo.GetVerification(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, v.NotificationSentAt)

	// changed evidence or references clear it
	require.NoError(t, repo.SaveVerification(ctx, &Verification{UserID: "u1", Reference1: "BGHSA-1999-00001"}))
	v, err = repo.GetVerification(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, v.NotificationSentAt)

	first, err = repo.MarkNotified(ctx, "u1", time.Unix(300, 0))
	require.NoError(t, err)
	assert.True(t, first)
}

func TestVerification_SameSubmission(t *testing.T) {
	base := Verification{
		EvidenceFiles: EvidenceFiles{{Name: "tc.jpg", URL: "https://cdn/tc.jpg", Size: 10, Type: "image/jpeg"}},
		Reference1:    "BGHSA-1990-00001",
		Reference2:    "BGHSA-1991-00002",
	}

	tests := []struct {
		name   string
		mutate func(v *Verification)
		want   bool
	}{
		{"identical", func(*Verification) {}, true},
		{"status only", func(v *Verification) { v.PDFGenerationStatus = PDFCompleted }, true},
		{"evidence url", func(v *Verification) { v.EvidenceFiles = EvidenceFiles{{Name: "tc.jpg", URL: "https://cdn/tc2.jpg", Size: 10, Type: "image/jpeg"}} }, false},
		{"extra evidence", func(v *Verification) { v.EvidenceFiles = append(slices.Clone(v.EvidenceFiles), EvidenceFile{Name: "b"}) }, false},
		{"reference", func(v *Verification) { v.Reference2 = "BGHSA-1992-00003" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			other.EvidenceFiles = slices.Clone(base.EvidenceFiles)
			tt.mutate(&other)
			assert.Equal(t, tt.want, base.SameSubmission(&other))
		})
	}
}

func TestVerificationMethod(t *testing.T) {
	tests := []struct {
		name string
		v    Verification
		want string
	}{
		{"both", Verification{EvidenceFiles: EvidenceFiles{{Name: "a"}}, Reference1: "R1"}, "Evidence + References"},
		{"evidence", Verification{EvidenceFiles: EvidenceFiles{{Name: "a"}}}, "Evidence Only"},
		{"references", Verification{Reference1: "R1", Reference2: "R2"}, "References Only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Method())
		})
	}
}

func TestEvidenceFilesScanAndValue(t *testing.T) {
	var files EvidenceFiles
	require.NoError(t, files.Scan(nil))
	assert.NotNil(t, files)
	assert.Empty(t, files)

	v, err := EvidenceFiles(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	require.NoError(t, files.Scan(`[{"name":"a.pdf","type":"application/pdf"}]`))
	require.Len(t, files, 1)
	assert.False(t, files[0].IsImage())

	assert.Error(t, files.Scan(42))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Amit Kumar Roy", (&Profile{FirstName: "Amit", MiddleName: "Kumar", LastName: "Roy"}).DisplayName())
	assert.Equal(t, "Amit Roy", (&Profile{FirstName: "Amit", LastName: "Roy"}).DisplayName())
	assert.Equal(t, "Dr. A. Roy", (&Profile{FullName: " Dr. A. Roy ", FirstName: "x"}).DisplayName())
}
