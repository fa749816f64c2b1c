package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateClass(_ context.Context, class school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	class.ID = uuid.New().String()
	repo.db.t.classes[class.ID] = class
	return class, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id string, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if class, ok := repo.db.t.classes[id]; ok {
		return class, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) QueryClasses(_ context.Context, _ ...core.DBExecutor) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0, len(repo.db.t.classes))
	for _, class := range repo.db.t.classes {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Level != classes[j].Level {
			return classes[i].Level < classes[j].Level
		}
		return classes[i].Name < classes[j].Name
	})
	return classes, nil
}

func (repo *schoolRepository) CreateSeries(_ context.Context, series school.ClassSeries, _ ...core.DBExecutor) (school.ClassSeries, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	series.ID = uuid.New().String()
	repo.db.t.series[series.ID] = series
	return series, nil
}

func (repo *schoolRepository) GetSeries(_ context.Context, id string, _ ...core.DBExecutor) (school.ClassSeries, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if series, ok := repo.db.t.series[id]; ok {
		return series, nil
	}
	return school.ClassSeries{}, school.ErrSeriesNotFound
}

func (repo *schoolRepository) QuerySeries(_ context.Context, classID string, _ ...core.DBExecutor) ([]school.ClassSeries, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	list := make([]school.ClassSeries, 0)
	for _, series := range repo.db.t.series {
		if classID == "" || series.ClassID == classID {
			list = append(list, series)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AcademicYear != list[j].AcademicYear {
			return list[i].AcademicYear > list[j].AcademicYear
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func (repo *schoolRepository) CreateStudent(_ context.Context, student school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	student.ID = uuid.New().String()
	repo.db.t.students[student.ID] = student
	return student, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, id string, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if student, ok := repo.db.t.students[id]; ok {
		return student, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

// LockStudent relies on RunInTx serializing transactions.
func (repo *schoolRepository) LockStudent(ctx context.Context, id string, exec ...core.DBExecutor) (school.Student, error) {
	return repo.GetStudent(ctx, id, exec...)
}

func (repo *schoolRepository) MatriculeExists(_ context.Context, matricule string, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, student := range repo.db.t.students {
		if student.ID != excludedID && strings.EqualFold(student.Matricule, matricule) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *schoolRepository) QueryStudents(_ context.Context, filter *school.StudentFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]school.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]school.Student, 0, len(repo.db.t.students))
	for _, student := range repo.db.t.students {
		if filter == nil || matchStudent(student, filter) {
			students = append(students, student)
		}
	}

	sort.SliceStable(students, func(i, j int) bool { return students[i].Matricule < students[j].Matricule })
	for k := len(ordering) - 1; k >= 0; k-- {
		ord := ordering[k]
		sort.SliceStable(students, func(i, j int) bool {
			if ord.Ascending {
				return studentLess(ord.Field, students[i], students[j])
			}
			return studentLess(ord.Field, students[j], students[i])
		})
	}
	return students, nil
}

func studentLess(field string, a, b school.Student) bool {
	switch field {
	case "first_name":
		return a.FirstName < b.FirstName
	case "last_name":
		return a.LastName < b.LastName
	case "status":
		return a.Status < b.Status
	case "created_at":
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.Matricule < b.Matricule
	}
}

func matchStudent(student school.Student, filter *school.StudentFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(student.Matricule), search) &&
			!strings.Contains(strings.ToLower(student.FullName()), search) {
			return false
		}
	}
	if filter.ClassID != "" && student.ClassID != filter.ClassID {
		return false
	}
	if filter.SeriesID != "" && student.SeriesID != filter.SeriesID {
		return false
	}
	if filter.Status != "" && student.Status != filter.Status {
		return false
	}
	return true
}

func (repo *schoolRepository) UpdateStudent(_ context.Context, student school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[student.ID]; !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	repo.db.t.students[student.ID] = student
	return student, nil
}
