package postgresengine_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
	"github.com/recordkit/fluent-recordstore-go/recordstore/playgroundvalidator"
	"github.com/recordkit/fluent-recordstore-go/recordstore/postgresengine"
	"github.com/recordkit/fluent-recordstore-go/testutil/postgresengine/postgreswrapper"
)

// The round-trip tests need a running PostgreSQL instance; they are gated
// behind an environment variable so the unit suite stays self-contained.
func requireIntegrationEnv(t *testing.T) {
	t.Helper()

	if os.Getenv("RECORDSTORE_INTEGRATION") == "" {
		t.Skip("set RECORDSTORE_INTEGRATION=1 to run database round-trip tests")
	}
}

func setupWrapper(t *testing.T, options ...postgresengine.Option) postgreswrapper.Wrapper {
	t.Helper()

	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, options...)
	t.Cleanup(wrapper.Close)

	postgreswrapper.EnsureTestTable(t, wrapper)
	postgreswrapper.CleanUp(t, wrapper)

	return wrapper
}

func uniqueEmail(local string) string {
	return local + "-" + uuid.NewString() + "@example.com"
}

func Test_Engine_InsertFindRoundTrip(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	email := uniqueEmail("ada")
	id, insertErr := engine.Insert(ctx, recordstore.Record{
		"email":    email,
		"username": "ada",
		"status":   2,
		"age":      36,
	})
	require.NoError(t, insertErr)
	require.NotZero(t, id)

	record, findErr := engine.Find(ctx, id)
	require.NoError(t, findErr)
	assert.Equal(t, email, record["email"])
	assert.Contains(t, record, "created_on")
}

func Test_Engine_FindAllHonorsFiltersOrderAndLimit(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	postgreswrapper.SeedUser(t, wrapper, "young", 2, 16)
	adultOne := postgreswrapper.SeedUser(t, wrapper, "adult-one", 2, 30)
	adultTwo := postgreswrapper.SeedUser(t, wrapper, "adult-two", 2, 40)
	postgreswrapper.SeedUser(t, wrapper, "inactive", 0, 50)

	spec, specErr := recordstore.BuildQuerySpec().
		Where("status", 2).
		Where("age >", 18).
		OrderBy("id", recordstore.OrderDescending).
		Limit(10, 0).
		Finalize()
	require.NoError(t, specErr)

	records, err := engine.FindAll(ctx, spec)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, adultTwo, records[0]["id"])
	assert.EqualValues(t, adultOne, records[1]["id"])
}

func Test_Engine_UpdateDeleteRoundTrip(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	id := postgreswrapper.SeedUser(t, wrapper, "ada", 1, 36)

	affected, updateErr := engine.Update(ctx, id, recordstore.Record{"username": "ada.lovelace"})
	require.NoError(t, updateErr)
	assert.EqualValues(t, 1, affected)

	record, findErr := engine.Find(ctx, id)
	require.NoError(t, findErr)
	assert.Equal(t, "ada.lovelace", record["username"])
	assert.Contains(t, record, "updated_on")

	deleted, deleteErr := engine.Delete(ctx, id)
	require.NoError(t, deleteErr)
	assert.EqualValues(t, 1, deleted)

	_, notFoundErr := engine.Find(ctx, id)
	assert.ErrorIs(t, notFoundErr, recordstore.ErrRecordNotFound)
	assert.Zero(t, postgreswrapper.CountRows(t, wrapper))
}

func Test_Engine_ReplaceUpsertsUnderTheGivenID(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	id := postgreswrapper.SeedUser(t, wrapper, "ada", 1, 36)

	replacedID, replaceErr := engine.Replace(ctx, id, recordstore.Record{
		"email":    uniqueEmail("replaced"),
		"username": "replaced",
		"status":   2,
	})
	require.NoError(t, replaceErr)
	assert.Equal(t, id, replacedID)

	record, findErr := engine.Find(ctx, id)
	require.NoError(t, findErr)
	assert.Equal(t, "replaced", record["username"])
	assert.Equal(t, 1, postgreswrapper.CountRows(t, wrapper))
}

func Test_Engine_IsUniqueAgainstLiveData(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	id := postgreswrapper.SeedUser(t, wrapper, "ada", 1, 36)

	record, findErr := engine.Find(ctx, id)
	require.NoError(t, findErr)
	takenEmail := record["email"].(string)

	unique, err := engine.IsUnique(ctx, "email", takenEmail)
	require.NoError(t, err)
	assert.False(t, unique)

	uniqueForSelf, selfErr := engine.IsUnique(ctx, "email", takenEmail, id)
	require.NoError(t, selfErr)
	assert.True(t, uniqueForSelf)

	uniqueFresh, freshErr := engine.IsUnique(ctx, "email", uniqueEmail("fresh"))
	require.NoError(t, freshErr)
	assert.True(t, uniqueFresh)
}

func Test_Engine_ValidationGateAgainstLiveData(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t,
		postgresengine.WithValidator(playgroundvalidator.New()),
		postgresengine.WithRules(recordstore.RuleSet{
			"email": "required,email",
			"age":   "omitempty,gte=18",
		}),
	)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	_, err := engine.Insert(ctx, recordstore.Record{"email": "not-an-email"})
	assert.ErrorIs(t, err, recordstore.ErrValidationFailed)
	assert.Contains(t, engine.LastValidationErrors(), "email")
	assert.Zero(t, postgreswrapper.CountRows(t, wrapper))

	_, okErr := engine.Insert(ctx, recordstore.Record{"email": uniqueEmail("valid"), "age": 21})
	assert.NoError(t, okErr)
	assert.Equal(t, 1, postgreswrapper.CountRows(t, wrapper))
}

func Test_Engine_ExecRawAgainstLiveData(t *testing.T) {
	requireIntegrationEnv(t)
	wrapper := setupWrapper(t)
	engine := wrapper.GetEngine()
	ctx := context.Background()

	first := postgreswrapper.SeedUser(t, wrapper, "one", 1, 20)
	second := postgreswrapper.SeedUser(t, wrapper, "two", 1, 30)
	postgreswrapper.SeedUser(t, wrapper, "three", 1, 40)

	affected, err := engine.ExecRaw(ctx,
		"UPDATE users SET status = :status WHERE id IN (:ids)",
		map[string]any{"status": 9, "ids": []int64{first, second}})

	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	spec, specErr := recordstore.BuildQuerySpec().Where("status", 9).Finalize()
	require.NoError(t, specErr)

	count, countErr := engine.CountBy(ctx, spec)
	require.NoError(t, countErr)
	assert.EqualValues(t, 2, count)
}
