package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/ecolage/apps/api/echo"
	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/docfee"
	"github.com/trezcool/ecolage/core/payment"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/core/tranche"
	"github.com/trezcool/ecolage/core/user"
	emailsvc "github.com/trezcool/ecolage/services/email"
	"github.com/trezcool/ecolage/services/idempotency"
	logsvc "github.com/trezcool/ecolage/services/logger"
	"github.com/trezcool/ecolage/storage/database"
	sqlxrepos "github.com/trezcool/ecolage/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	Idempotency idempotency.Store
	UserSvc     *user.Service
	SchoolSvc   *school.Service
	TrancheSvc  *tranche.Service
	PaymentSvc  *payment.Service
	DocFeeSvc   *docfee.Service
}

func newZapLogger(conf *core.Config) *zap.Logger {
	return logsvc.NewZapLogger(conf)
}

func newLogger(local *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(local.Named("api"), conf)
}

func newDBLogger(local *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(local.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newDBExecutor(db *sqlx.DB) core.DBExecutor {
	return db
}

func newTxRunner(db *sqlx.DB) core.TxRunner {
	return database.NewTxRunner(db)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf.Server.Address(), nil, &echoapi.Deps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		Idempotency: p.Idempotency,
		UserSvc:     p.UserSvc,
		SchoolSvc:   p.SchoolSvc,
		TrancheSvc:  p.TrancheSvc,
		PaymentSvc:  p.PaymentSvc,
		DocFeeSvc:   p.DocFeeSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newDBExecutor))
	must(c.Provide(newTxRunner))
	must(c.Provide(emailsvc.New))
	must(c.Provide(idempotency.New))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(sqlxrepos.NewTrancheRepository, dig.As(new(tranche.Repository))))
	must(c.Provide(sqlxrepos.NewPaymentRepository, dig.As(new(payment.Repository))))
	must(c.Provide(sqlxrepos.NewDocFeeRepository, dig.As(new(docfee.Repository))))
	must(c.Provide(sqlxrepos.NewReceiptCounter, dig.As(new(core.ReceiptCounter))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(school.NewService))
	must(c.Provide(tranche.NewService))
	must(c.Provide(payment.NewService))
	must(c.Provide(docfee.NewService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
