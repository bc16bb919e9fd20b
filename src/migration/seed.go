package migration

import (
	"context"
	"fmt"
	"math/rand"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/utils"
	"git.handmade.network/hmn/discuss/src/website"
	lorem "github.com/HandmadeNetwork/golorem"
)

/*
Migrates to the latest version and fills the database with a few users, a
category and some threaded topics for local development. Everything after
the users goes through the discussion service, so the seeded trees obey the
same rules as real ones.
*/
func SampleSeed(ctx context.Context) error {
	if err := Migrate(ctx, LatestVersion()); err != nil {
		return err
	}

	app, err := website.NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Println("Creating users...")
	admin, err := seedUser(ctx, app, models.User{Username: "admin", Role: models.RoleAdmin})
	if err != nil {
		return err
	}
	mod, err := seedUser(ctx, app, models.User{Username: "mod", DisplayName: "Moderator", Role: models.RoleModerator})
	if err != nil {
		return err
	}
	var members []models.User
	for _, name := range []string{"alice", "bob", "charlie"} {
		u, err := seedUser(ctx, app, models.User{Username: name})
		if err != nil {
			return err
		}
		members = append(members, u)
	}
	fmt.Println("Creating a spammer...")
	if _, err := seedUser(ctx, app, models.User{Username: "spam", DisplayName: "Hot singletons in your local area", Role: models.RoleBanned}); err != nil {
		return err
	}

	fmt.Println("Creating categories...")
	general, err := app.Categories.Create(ctx, "General", models.CategoryStatusOpen)
	if err != nil {
		return err
	}
	if _, err := app.Categories.Create(ctx, "Announcements", models.CategoryStatusLocked); err != nil {
		return err
	}

	fmt.Println("Creating topics...")
	everyone := append([]models.User{admin, mod}, members...)
	for i := 0; i < 5; i++ {
		author := members[rand.Intn(len(members))]
		topic, err := app.Service.CreateTopic(ctx, general.ID, author.ID, lorem.Sentence(3, 8), lorem.Paragraph(1, 3))
		if err != nil {
			return err
		}

		var replies []models.Reply
		for j := 0; j < 12; j++ {
			var parentID *int
			if len(replies) > 0 && randomBool() {
				parent := replies[rand.Intn(len(replies))]
				if parent.Depth < models.MaxDepth {
					parentID = utils.P(parent.ID)
				}
			}
			replier := everyone[rand.Intn(len(everyone))]
			reply, err := app.Service.CreateReply(ctx, topic.ID, parentID, replier.ID, lorem.Paragraph(1, 3))
			if err != nil {
				return err
			}
			replies = append(replies, reply)

			for _, voter := range members {
				if voter.ID == replier.ID || !randomBool() {
					continue
				}
				if _, err := app.Service.VoteReply(ctx, reply.ID, voter.ID, models.VoteUp); err != nil {
					return err
				}
			}
		}

		if randomBool() {
			solution := replies[rand.Intn(len(replies))]
			if err := app.Service.MarkSolution(ctx, topic.ID, solution.ID, author.ID); err != nil {
				return err
			}
		}
	}

	fmt.Println("Done!")
	return nil
}

func seedUser(ctx context.Context, app *website.App, input models.User) (models.User, error) {
	input.Role = utils.OrDefault(input.Role, models.RoleMember)
	return app.Users.CreateUser(ctx, input)
}

func randomBool() bool {
	return rand.Intn(2) == 1
}
