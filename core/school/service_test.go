package school_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/tests"
)

func errorField(t *testing.T, err error) string {
	t.Helper()
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		require.NotEmpty(t, vErr.Fields)
		return vErr.Fields[0].Field
	}
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	return vErrs[0].Field()
}

func TestService_ClassesAndSeries(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	class, err := env.SchoolSvc.CreateClass(ctx, school.NewClass{Name: " 6eme ", Level: 6})
	require.NoError(t, err)
	assert.Equal(t, "6eme", class.Name)

	_, err = env.SchoolSvc.CreateClass(ctx, school.NewClass{Name: ""})
	assert.Equal(t, "name", errorField(t, err))

	got, err := env.SchoolSvc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, class, got)

	series, err := env.SchoolSvc.CreateSeries(ctx, school.NewSeries{ClassID: class.ID, Name: "6eme A", AcademicYear: "2024-2025"})
	require.NoError(t, err)
	assert.Equal(t, class.ID, series.ClassID)

	_, err = env.SchoolSvc.CreateSeries(ctx, school.NewSeries{ClassID: "nope", Name: "X", AcademicYear: "2024-2025"})
	assert.Equal(t, "class_id", errorField(t, err))

	other := testutil.CreateClass(t, env.SchoolRepo, "5eme", 5)
	testutil.CreateSeries(t, env.SchoolRepo, other, "5eme A")

	list, err := env.SchoolSvc.ListSeries(ctx, class.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	all, err := env.SchoolSvc.ListSeries(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	classes, err := env.SchoolSvc.ListClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
}

func TestService_Students(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	class := testutil.CreateClass(t, env.SchoolRepo, "6eme", 6)
	seriesA := testutil.CreateSeries(t, env.SchoolRepo, class, "6eme A")
	other := testutil.CreateClass(t, env.SchoolRepo, "5eme", 5)
	seriesB := testutil.CreateSeries(t, env.SchoolRepo, other, "5eme B")

	student, err := env.SchoolSvc.EnrollStudent(ctx, school.NewStudent{
		Matricule:     "MAT001",
		FirstName:     "Awa",
		LastName:      "Ngono",
		SeriesID:      seriesA.ID,
		GuardianEmail: "Parent@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, school.StatusEnrolled, student.Status)
	assert.Equal(t, class.ID, student.ClassID)
	assert.Equal(t, "parent@example.com", student.GuardianEmail)

	t.Run("invalid enrollment", func(t *testing.T) {
		tests := []struct {
			name  string
			ns    school.NewStudent
			field string
		}{
			{"duplicate matricule", school.NewStudent{Matricule: "mat001", FirstName: "A", LastName: "B", SeriesID: seriesA.ID}, "matricule"},
			{"unknown series", school.NewStudent{Matricule: "MAT009", FirstName: "A", LastName: "B", SeriesID: "nope"}, "series_id"},
			{"missing name", school.NewStudent{Matricule: "MAT009", LastName: "B", SeriesID: seriesA.ID}, "first_name"},
			{"bad email", school.NewStudent{Matricule: "MAT009", FirstName: "A", LastName: "B", SeriesID: seriesA.ID, GuardianEmail: "x"}, "guardian_email"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := env.SchoolSvc.EnrollStudent(ctx, tc.ns)
				assert.Equal(t, tc.field, errorField(t, err))
			})
		}
	})

	t.Run("update moves the class with the series", func(t *testing.T) {
		updated, err := env.SchoolSvc.UpdateStudent(ctx, student.ID, school.UpdateStudent{SeriesID: seriesB.ID, Status: "Suspended"})
		require.NoError(t, err)
		assert.Equal(t, other.ID, updated.ClassID)
		assert.Equal(t, school.StatusSuspended, updated.Status)
		assert.Equal(t, "Awa", updated.FirstName)

		_, err = env.SchoolSvc.UpdateStudent(ctx, student.ID, school.UpdateStudent{Status: "expelled"})
		assert.Equal(t, "status", errorField(t, err))

		_, err = env.SchoolSvc.UpdateStudent(ctx, "nope", school.UpdateStudent{})
		assert.Equal(t, school.ErrStudentNotFound, errors.Cause(err))
	})

	t.Run("query", func(t *testing.T) {
		testutil.CreateStudent(t, env.SchoolRepo, seriesA, "MAT002")
		testutil.CreateStudent(t, env.SchoolRepo, seriesA, "MAT003", school.StatusWithdrawn)

		tests := []struct {
			name   string
			filter *school.StudentFilter
			want   []string
		}{
			{"all", nil, []string{"MAT001", "MAT002", "MAT003"}},
			{"search", &school.StudentFilter{Search: "awa"}, []string{"MAT001"}},
			{"class", &school.StudentFilter{ClassID: class.ID}, []string{"MAT002", "MAT003"}},
			{"series", &school.StudentFilter{SeriesID: seriesB.ID}, []string{"MAT001"}},
			{"status", &school.StudentFilter{Status: " WITHDRAWN "}, []string{"MAT003"}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				students, err := env.SchoolSvc.QueryStudents(ctx, tc.filter, nil)
				require.NoError(t, err)
				got := make([]string, 0, len(students))
				for _, s := range students {
					got = append(got, s.Matricule)
				}
				assert.Equal(t, tc.want, got)
			})
		}

		students, err := env.SchoolSvc.QueryStudents(ctx, nil, []core.DBOrdering{{Field: "matricule"}})
		require.NoError(t, err)
		require.Len(t, students, 3)
		assert.Equal(t, "MAT003", students[0].Matricule)
	})
}
