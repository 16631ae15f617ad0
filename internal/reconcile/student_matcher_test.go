package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduroots/backend/internal/model"
)

func dob(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, "benali_yasmine", NameKey("  BenAli ", "Yasmine"))
}

func TestNormalizeGender(t *testing.T) {
	for _, g := range []string{"M", "homme", "Male", " masculin "} {
		assert.Equal(t, model.GenderMale, NormalizeGender(g), g)
	}
	for _, g := range []string{"f", "Femme", "female", "féminin", "feminin"} {
		assert.Equal(t, model.GenderFemale, NormalizeGender(g), g)
	}
	assert.Empty(t, NormalizeGender("x"))
}

func TestMatchScore(t *testing.T) {
	live := model.Student{Email: "A@b.fr", Phone: "0601", Gender: model.GenderFemale, DateOfBirth: dob(2012, 5, 4)}

	full := ImportedStudent{Email: "a@B.fr", Phone: "0601", Gender: "F", DateOfBirth: dob(2012, 5, 4)}
	assert.Equal(t, 21, MatchScore(full, live))

	bare := ImportedStudent{}
	assert.Equal(t, 10, MatchScore(bare, live), "同名基础分为 10")
}

func TestCompareStudents_GreedyClaimInImportOrder(t *testing.T) {
	live := []model.Student{
		{StudentID: "db-1", Lastname: "Diallo", Firstname: "Amina", Email: "other@x.fr", Gender: model.GenderFemale},
		{StudentID: "db-2", Lastname: "Diallo", Firstname: "Amina", Email: "amina@x.fr", Gender: model.GenderFemale},
		{StudentID: "db-3", Lastname: "Martin", Firstname: "Leo"},
	}
	imported := []ImportedStudent{
		{Lastname: "diallo", Firstname: "amina", Email: "AMINA@x.fr", Gender: "f"},
		{Lastname: "Diallo", Firstname: "Amina"},
		{Lastname: "Diallo", Firstname: "Amina"},
		{Lastname: "Zed", Firstname: "Ali"},
	}

	got := CompareStudents(imported, live)

	require.Len(t, got.Matched, 2)
	assert.Equal(t, "db-2", got.Matched[0].StudentID, "邮箱匹配者得分最高")
	assert.Equal(t, 17, got.Matched[0].Score)
	assert.Equal(t, "db-1", got.Matched[1].StudentID, "剩余候选归第二个导入项")

	require.Len(t, got.OnlyInImport, 2)
	assert.Equal(t, "Diallo", got.OnlyInImport[0].Lastname)
	assert.Equal(t, "Zed", got.OnlyInImport[1].Lastname)

	require.Len(t, got.OnlyInLive, 1)
	assert.Equal(t, "db-3", got.OnlyInLive[0].StudentID)
}

func TestCompareStudents_TieKeepsFirstLiveStudent(t *testing.T) {
	live := []model.Student{
		{StudentID: "first", Lastname: "A", Firstname: "B"},
		{StudentID: "second", Lastname: "A", Firstname: "B"},
	}
	got := CompareStudents([]ImportedStudent{{Lastname: "A", Firstname: "B"}}, live)
	require.Len(t, got.Matched, 1)
	assert.Equal(t, "first", got.Matched[0].StudentID)
}

func TestFindDiscrepancies(t *testing.T) {
	live := model.Student{Email: "a@x.fr", Phone: "01", Gender: model.GenderMale, DateOfBirth: dob(2010, 1, 2)}
	in := ImportedStudent{Email: "b@x.fr", Phone: "02", Gender: "femme", DateOfBirth: dob(2010, 1, 3)}

	got := FindDiscrepancies(in, live)
	fields := make([]string, 0, len(got))
	for _, d := range got {
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{"email", "date_of_birth", "gender", "phone"}, fields)

	same := ImportedStudent{Email: "A@X.fr", Phone: "01", Gender: "m", DateOfBirth: dob(2010, 1, 2)}
	assert.Empty(t, FindDiscrepancies(same, live))
}

func TestFindDiscrepancies_EmptyEmailIgnored(t *testing.T) {
	got := FindDiscrepancies(ImportedStudent{Gender: "m"}, model.Student{Email: "a@x.fr", Gender: model.GenderMale})
	assert.Empty(t, got)
}
