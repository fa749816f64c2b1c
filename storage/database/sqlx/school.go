package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
)

const (
	classColumns   = `id, name, level, created_at`
	seriesColumns  = `id, class_id, name, academic_year, created_at`
	studentColumns = `id, matricule, first_name, last_name, series_id, class_id, status, guardian_name, guardian_email, created_at, updated_at`
)

type schoolRepository struct {
	repository
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{repository{exec: exec}}
}

func (repo schoolRepository) CreateClass(ctx context.Context, class school.Class, exec ...core.DBExecutor) (school.Class, error) {
	class.ID = newID()
	class.CreatedAt = class.CreatedAt.UTC()
	q := `INSERT INTO class (` + classColumns + `) VALUES (:id, :name, :level, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, class); err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return class, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	if !validID(id) {
		return school.Class{}, school.ErrClassNotFound
	}
	var class school.Class
	q := `SELECT ` + classColumns + ` FROM class WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &class, q, id); err != nil {
		return school.Class{}, trapNoRowsErr(err, school.ErrClassNotFound, "finding class")
	}
	return class, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]school.Class, error) {
	classes := make([]school.Class, 0)
	q := `SELECT ` + classColumns + ` FROM class ORDER BY level ASC, name ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &classes, q); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo schoolRepository) CreateSeries(ctx context.Context, series school.ClassSeries, exec ...core.DBExecutor) (school.ClassSeries, error) {
	series.ID = newID()
	series.CreatedAt = series.CreatedAt.UTC()
	q := `INSERT INTO class_series (` + seriesColumns + `) VALUES (:id, :class_id, :name, :academic_year, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, series); err != nil {
		return school.ClassSeries{}, errors.Wrap(err, "inserting class series")
	}
	return series, nil
}

func (repo schoolRepository) GetSeries(ctx context.Context, id string, exec ...core.DBExecutor) (school.ClassSeries, error) {
	if !validID(id) {
		return school.ClassSeries{}, school.ErrSeriesNotFound
	}
	var series school.ClassSeries
	q := `SELECT ` + seriesColumns + ` FROM class_series WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &series, q, id); err != nil {
		return school.ClassSeries{}, trapNoRowsErr(err, school.ErrSeriesNotFound, "finding class series")
	}
	return series, nil
}

func (repo schoolRepository) QuerySeries(ctx context.Context, classID string, exec ...core.DBExecutor) ([]school.ClassSeries, error) {
	list := make([]school.ClassSeries, 0)
	if classID != "" && !validID(classID) {
		return list, nil
	}
	q := `SELECT ` + seriesColumns + ` FROM class_series WHERE ($1 = '' OR class_id::text = $1)
		ORDER BY academic_year DESC, name ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &list, q, classID); err != nil {
		return nil, errors.Wrap(err, "querying class series")
	}
	return list, nil
}

func (repo schoolRepository) CreateStudent(ctx context.Context, student school.Student, exec ...core.DBExecutor) (school.Student, error) {
	student.ID = newID()
	student.CreatedAt = student.CreatedAt.UTC()
	student.UpdatedAt = student.UpdatedAt.UTC()
	q := `INSERT INTO student (` + studentColumns + `)
		VALUES (:id, :matricule, :first_name, :last_name, :series_id, :class_id, :status, :guardian_name, :guardian_email, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, student); err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return student, nil
}

func (repo schoolRepository) getStudent(ctx context.Context, id, suffix string, exec []core.DBExecutor) (school.Student, error) {
	if !validID(id) {
		return school.Student{}, school.ErrStudentNotFound
	}
	var student school.Student
	q := `SELECT ` + studentColumns + ` FROM student WHERE id = $1` + suffix
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &student, q, id); err != nil {
		return school.Student{}, trapNoRowsErr(err, school.ErrStudentNotFound, "finding student")
	}
	return student, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (school.Student, error) {
	return repo.getStudent(ctx, id, "", exec)
}

// LockStudent serializes the payments of a student: the row stays locked until the transaction ends.
func (repo schoolRepository) LockStudent(ctx context.Context, id string, exec ...core.DBExecutor) (school.Student, error) {
	return repo.getStudent(ctx, id, " FOR UPDATE", exec)
}

func (repo schoolRepository) MatriculeExists(ctx context.Context, matricule string, excludedID string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	q := `SELECT EXISTS (SELECT 1 FROM student WHERE LOWER(matricule) = LOWER($1) AND id::text <> $2)`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &found, q, matricule, excludedID); err != nil {
		return false, errors.Wrap(err, "checking matricule")
	}
	return found, nil
}

func (repo schoolRepository) QueryStudents(ctx context.Context, filter *school.StudentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Student, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf(
				"(matricule ILIKE %s OR first_name ILIKE %s OR last_name ILIKE %s OR (first_name || ' ' || last_name) ILIKE %s)", p, p, p, p))
		}
		if filter.ClassID != "" {
			conds = append(conds, "class_id::text = "+arg(filter.ClassID))
		}
		if filter.SeriesID != "" {
			conds = append(conds, "series_id::text = "+arg(filter.SeriesID))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
		}
	}

	students := make([]school.Student, 0)
	q := `SELECT ` + studentColumns + ` FROM student` + where(conds) + orderBy(ordering, "matricule ASC")
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &students, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo schoolRepository) UpdateStudent(ctx context.Context, student school.Student, exec ...core.DBExecutor) (school.Student, error) {
	student.UpdatedAt = student.UpdatedAt.UTC()
	q := `UPDATE student SET first_name = :first_name, last_name = :last_name, series_id = :series_id,
		class_id = :class_id, status = :status, guardian_name = :guardian_name, guardian_email = :guardian_email,
		updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, student)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.Student{}, school.ErrStudentNotFound
	}
	return student, nil
}
