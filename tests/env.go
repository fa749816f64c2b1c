package testutil

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/docfee"
	"github.com/trezcool/ecolage/core/payment"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/core/tranche"
	"github.com/trezcool/ecolage/core/user"
	"github.com/trezcool/ecolage/services/email"
	"github.com/trezcool/ecolage/services/logger"
	"github.com/trezcool/ecolage/storage/database/inmem"
)

// Env bundles the repositories and services of the app over a fresh in-memory store.
type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
	Mail       *emailsvc.ConsoleServiceMock

	UserRepo    user.Repository
	SchoolRepo  school.Repository
	TrancheRepo tranche.Repository
	PaymentRepo payment.Repository
	DocFeeRepo  docfee.Repository

	UserSvc    *user.Service
	SchoolSvc  *school.Service
	TrancheSvc *tranche.Service
	PaymentSvc *payment.Service
	DocFeeSvc  *docfee.Service
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	log := logsvc.NewNopLogger()
	core.ParseEmailTemplates(conf, log)
	validate, translator := NewValidator()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, log)

	db := inmemdb.Open()
	env := &Env{
		Conf:        conf,
		DB:          db,
		Validate:    validate,
		Translator:  translator,
		Logger:      log,
		Mail:        mailSvc,
		UserRepo:    inmemdb.NewUserRepository(db),
		SchoolRepo:  inmemdb.NewSchoolRepository(db),
		TrancheRepo: inmemdb.NewTrancheRepository(db),
		PaymentRepo: inmemdb.NewPaymentRepository(db),
		DocFeeRepo:  inmemdb.NewDocFeeRepository(db),
	}
	env.UserSvc = user.NewService(env.UserRepo)
	env.SchoolSvc = school.NewService(env.SchoolRepo, validate)
	env.TrancheSvc = tranche.NewService(env.TrancheRepo, env.SchoolRepo, db, validate, log)
	env.PaymentSvc = payment.NewService(env.PaymentRepo, env.SchoolRepo, env.TrancheRepo, db, db, validate, mailSvc, log)
	env.DocFeeSvc = docfee.NewService(env.DocFeeRepo, env.SchoolRepo, db, db, validate, mailSvc, log)
	return env
}

// Reset empties the store and the sent mails.
func (env *Env) Reset() {
	env.DB.Flush()
	env.Mail.Reset()
}
