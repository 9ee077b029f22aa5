package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/asaidimu/go-kente/core/query"
	"github.com/asaidimu/go-kente/core/schema"
	"github.com/asaidimu/go-kente/core/store"
	"github.com/asaidimu/go-kente/sqlite"
	"github.com/asaidimu/go-kente/utils"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

const dbFileName = "crm.db"

// DealStage is stored as its underlying integer.
type DealStage int64

const (
	StageProspect DealStage = iota + 1
	StageNegotiation
	StageWon
	StageLost
)

func (s DealStage) String() string {
	switch s {
	case StageProspect:
		return "prospect"
	case StageNegotiation:
		return "negotiation"
	case StageWon:
		return "won"
	case StageLost:
		return "lost"
	}
	return fmt.Sprintf("stage(%d)", int64(s))
}

// Contact is the root entity. The Deals navigation is declared under the
// relationship name "contact" because the join attribute convention is
// "<relationship>id" on both sides: contact.contactid = deal.contactid.
type Contact struct {
	ContactID uuid.UUID `kente:"id"`
	FirstName string
	LastName  string
	Email     string
	Age       int64
	Active    bool
	CreatedAt time.Time
	Deals     []Deal `kente:"relationship=contact"`
}

// Deal belongs to one contact via the contactid attribute.
type Deal struct {
	DealID    uuid.UUID `kente:"id"`
	ContactID uuid.UUID
	Title     string
	Amount    float64
	Stage     DealStage
	CreatedAt time.Time
}

func main() {
	// Start fresh so repeated runs show the same output.
	if err := os.Remove(dbFileName); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing database file %s: %v", dbFileName, err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := sql.Open("sqlite3", dbFileName)
	if err != nil {
		log.Fatalf("Failed to open database connection: %v", err)
	}
	defer func() {
		if cErr := db.Close(); cErr != nil {
			log.Printf("Error closing database connection: %v", cErr)
		}
	}()

	contactDesc, err := schema.Register[Contact]("contact")
	if err != nil {
		log.Fatalf("Failed to register contact entity: %v", err)
	}
	dealDesc, err := schema.Register[Deal]("deal")
	if err != nil {
		log.Fatalf("Failed to register deal entity: %v", err)
	}

	interactor, err := sqlite.New(db, nil, logger)
	if err != nil {
		log.Fatalf("Failed to create interactor: %v", err)
	}
	st, err := store.New(interactor, &store.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}

	st.RegisterSubscription(store.RegisterSubscriptionOptions{
		Event: store.QueryExecuteSuccess,
		Callback: func(ctx context.Context, event store.QueryEvent) error {
			if event.Entity != nil && event.RowCount != nil {
				fmt.Printf(">> query on %q returned %d row(s)\n", *event.Entity, *event.RowCount)
			}
			return nil
		},
	})

	ctx := context.Background()
	if err := st.Provision(ctx, contactDesc, dealDesc); err != nil {
		log.Fatalf("Failed to provision entities: %v", err)
	}
	fmt.Println("Provisioned 'contact' and 'deal' tables.")

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	contacts := []Contact{
		{FirstName: "Amara", LastName: "Okoye", Email: "amara@example.com", Age: 34, Active: true, CreatedAt: now},
		{FirstName: "Brian", LastName: "Mwangi", Email: "brian@example.com", Age: 29, Active: true, CreatedAt: now.Add(time.Hour)},
		{FirstName: "Chao", LastName: "Wanjiru", Email: "chao@example.com", Age: 41, Active: false, CreatedAt: now.Add(2 * time.Hour)},
	}
	contactRecords, err := utils.EncodeRecords(contactDesc, contacts)
	if err != nil {
		log.Fatalf("Failed to encode contacts: %v", err)
	}
	storedContacts, err := st.Insert(ctx, "contact", contactRecords)
	if err != nil {
		log.Fatalf("Failed to insert contacts: %v", err)
	}
	fmt.Printf("Inserted %d contacts.\n", len(storedContacts))

	// RETURNING row order is not guaranteed, so key the ids by email.
	idByEmail := make(map[string]uuid.UUID, len(storedContacts))
	for _, row := range storedContacts {
		idByEmail[row["email"].(string)] = row[contactDesc.IDAttribute].(uuid.UUID)
	}
	amaraID := idByEmail["amara@example.com"]
	brianID := idByEmail["brian@example.com"]

	deals := []Deal{
		{ContactID: amaraID, Title: "Annual license", Amount: 12000, Stage: StageWon, CreatedAt: now},
		{ContactID: amaraID, Title: "Support renewal", Amount: 3400, Stage: StageNegotiation, CreatedAt: now.Add(time.Hour)},
		{ContactID: brianID, Title: "Starter plan", Amount: 900, Stage: StageWon, CreatedAt: now.Add(2 * time.Hour)},
	}
	dealRecords, err := utils.EncodeRecords(dealDesc, deals)
	if err != nil {
		log.Fatalf("Failed to encode deals: %v", err)
	}
	if _, err := st.Insert(ctx, "deal", dealRecords); err != nil {
		log.Fatalf("Failed to insert deals: %v", err)
	}
	fmt.Println("Inserted 3 deals.")

	// Active contacts, selected columns, ordered by last name.
	fmt.Println("\nActive contacts:")
	activeQuery, err := query.NewBuilder[Contact]().
		Select(
			func(c *Contact) any { return &c.FirstName },
			func(c *Contact) any { return &c.LastName },
			func(c *Contact) any { return &c.Email },
		).
		Where(func(c *Contact) any { return &c.Active }, query.ComparisonOperatorEqual, true).
		OrderBy(func(c *Contact) any { return &c.LastName }).
		Build()
	if err != nil {
		log.Fatalf("Failed to build query: %v", err)
	}
	rows, err := st.Query(ctx, activeQuery)
	if err != nil {
		log.Fatalf("Failed to query contacts: %v", err)
	}
	fmt.Println("---------------------------------------------")
	fmt.Printf("%-12s %-12s %-20s\n", "First", "Last", "Email")
	fmt.Println("---------------------------------------------")
	for _, row := range rows {
		fmt.Printf("%-12s %-12s %-20s\n", row["firstname"], row["lastname"], row["email"])
	}
	fmt.Println("---------------------------------------------")

	// Sibling Where calls AND together; the group ORs inside itself.
	fmt.Println("\nContacts aged 30+ named Okoye or Wanjiru:")
	groupQuery, err := query.NewBuilder[Contact]().
		Where(func(c *Contact) any { return &c.Age }, query.ComparisonOperatorGreaterEqual, 30).
		WhereAny(func(g *query.FilterGroupBuilder[Contact]) {
			g.Where(func(c *Contact) any { return &c.LastName }, query.ComparisonOperatorEqual, "Okoye")
			g.Where(func(c *Contact) any { return &c.LastName }, query.ComparisonOperatorEqual, "Wanjiru")
		}).
		Build()
	if err != nil {
		log.Fatalf("Failed to build query: %v", err)
	}
	rows, err = st.Query(ctx, groupQuery)
	if err != nil {
		log.Fatalf("Failed to query contacts: %v", err)
	}
	for _, row := range rows {
		fmt.Printf("  %s %s (age %v)\n", row["firstname"], row["lastname"], row["age"])
	}

	// Expansion: each row pairs a contact with one of their won deals.
	fmt.Println("\nContacts with won deals:")
	dealBuilder := query.NewBuilder[Contact]().
		Select(func(c *Contact) any { return &c.LastName })
	query.Expand(dealBuilder,
		func(c *Contact) any { return &c.Deals },
		func(d *query.Builder[Deal]) {
			d.Select(
				func(d *Deal) any { return &d.Title },
				func(d *Deal) any { return &d.Amount },
			).Where(func(d *Deal) any { return &d.Stage }, query.ComparisonOperatorEqual, StageWon)
		})
	wonQuery, err := dealBuilder.Build()
	if err != nil {
		log.Fatalf("Failed to build query: %v", err)
	}
	rows, err = st.Query(ctx, wonQuery)
	if err != nil {
		log.Fatalf("Failed to query won deals: %v", err)
	}
	for _, row := range rows {
		fmt.Printf("  %s: %s (%.0f)\n", row["lastname"], row["deals.title"], row["deals.amount"])
	}

	// Typed retrieval decodes records straight into entity values.
	fmt.Println("\nTyped retrieval, youngest first, top 2:")
	youngest := query.NewBuilder[Contact]().
		OrderBy(func(c *Contact) any { return &c.Age }).
		Top(2)
	typed, err := store.Retrieve(ctx, st, youngest)
	if err != nil {
		log.Fatalf("Failed to retrieve contacts: %v", err)
	}
	for _, c := range typed {
		fmt.Printf("  %s %s, age %d, created %s\n", c.FirstName, c.LastName, c.Age, c.CreatedAt.Format("2006-01-02"))
	}

	fmt.Printf("\nDatabase written to %s. Inspect it with the sqlite3 shell:\n", dbFileName)
	fmt.Printf("  sqlite3 %s\n", dbFileName)
	fmt.Println("  .tables")
	fmt.Println("  .schema contact")
	fmt.Println("  SELECT * FROM deal;")
}
