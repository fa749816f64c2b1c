package school

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
)

var (
	// errors
	ErrClassNotFound   = core.NewNotFoundError("class")
	ErrSeriesNotFound  = core.NewNotFoundError("class series")
	ErrStudentNotFound = core.NewNotFoundError("student")
	ErrMatriculeExists = errors.New("a student with this matricule already exists")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]Class, error)

		CreateSeries(ctx context.Context, series ClassSeries, exec ...core.DBExecutor) (ClassSeries, error)
		GetSeries(ctx context.Context, id string, exec ...core.DBExecutor) (ClassSeries, error)
		// QuerySeries lists the series of a class, or all series when classID is empty.
		QuerySeries(ctx context.Context, classID string, exec ...core.DBExecutor) ([]ClassSeries, error)

		CreateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		// LockStudent reads a student and locks its row until the end of the transaction held by exec.
		LockStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		MatriculeExists(ctx context.Context, matricule string, excludedID string, exec ...core.DBExecutor) (bool, error)
		QueryStudents(ctx context.Context, filter *StudentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Class{}, err
	}
	return svc.repo.CreateClass(ctx, Class{
		Name:      nc.Name,
		Level:     nc.Level,
		CreatedAt: NowFunc().UTC(),
	})
}

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) ListClasses(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx)
}

func (svc *Service) CreateSeries(ctx context.Context, ns NewSeries) (ClassSeries, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return ClassSeries{}, err
	}
	if _, err := svc.repo.GetClass(ctx, ns.ClassID); err != nil {
		if errors.Cause(err) == ErrClassNotFound {
			return ClassSeries{}, core.NewFieldValidationError("class_id", err.Error())
		}
		return ClassSeries{}, errors.Wrap(err, "finding class")
	}
	return svc.repo.CreateSeries(ctx, ClassSeries{
		ClassID:      ns.ClassID,
		Name:         ns.Name,
		AcademicYear: ns.AcademicYear,
		CreatedAt:    NowFunc().UTC(),
	})
}

func (svc *Service) ListSeries(ctx context.Context, classID string) ([]ClassSeries, error) {
	return svc.repo.QuerySeries(ctx, classID)
}

func (svc *Service) getSeriesField(ctx context.Context, id string) (ClassSeries, error) {
	series, err := svc.repo.GetSeries(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrSeriesNotFound {
			return ClassSeries{}, core.NewFieldValidationError("series_id", err.Error())
		}
		return ClassSeries{}, errors.Wrap(err, "finding class series")
	}
	return series, nil
}

func (svc *Service) checkMatricule(ctx context.Context, matricule, excludedID string) error {
	exists, err := svc.repo.MatriculeExists(ctx, matricule, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking matricule uniqueness")
	}
	if exists {
		return core.NewValidationError(ErrMatriculeExists, core.FieldError{Field: "matricule", Error: ErrMatriculeExists.Error()})
	}
	return nil
}

// EnrollStudent registers a new student in a class series.
func (svc *Service) EnrollStudent(ctx context.Context, ns NewStudent) (Student, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}
	series, err := svc.getSeriesField(ctx, ns.SeriesID)
	if err != nil {
		return Student{}, err
	}
	if err := svc.checkMatricule(ctx, ns.Matricule, ""); err != nil {
		return Student{}, err
	}

	now := NowFunc().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		Matricule:     ns.Matricule,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		SeriesID:      series.ID,
		ClassID:       series.ClassID,
		Status:        StatusEnrolled,
		GuardianName:  ns.GuardianName,
		GuardianEmail: ns.GuardianEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) QueryStudents(ctx context.Context, filter *StudentFilter, ordering []core.DBOrdering) ([]Student, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryStudents(ctx, filter, core.CleanOrdering(ordering, StudentOrderingFields...))
}

func (svc *Service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	us.Clean()
	if err := svc.validate.Struct(us); err != nil {
		return Student{}, err
	}
	student, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}

	if us.FirstName != "" {
		student.FirstName = us.FirstName
	}
	if us.LastName != "" {
		student.LastName = us.LastName
	}
	if us.Status != "" {
		student.Status = us.Status
	}
	if us.GuardianName != "" {
		student.GuardianName = us.GuardianName
	}
	if us.GuardianEmail != "" {
		student.GuardianEmail = us.GuardianEmail
	}
	if us.SeriesID != "" && us.SeriesID != student.SeriesID {
		series, err := svc.getSeriesField(ctx, us.SeriesID)
		if err != nil {
			return Student{}, err
		}
		student.SeriesID = series.ID
		student.ClassID = series.ClassID
	}
	student.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateStudent(ctx, student)
}
