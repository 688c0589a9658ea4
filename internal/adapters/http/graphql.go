package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/vegwatch/vegwatch/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the scan service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	yearlyScoreType := graphql.NewObject(graphql.ObjectConfig{
		Name: "YearlyScore",
		Fields: graphql.Fields{
			"year": &graphql.Field{Type: graphql.Int},
			"average_ndvi": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					// nil stays null: an absent yearly score is data
					ys, ok := p.Source.(domain.YearlyScore)
					if !ok || ys.AverageNDVI == nil {
						return nil, nil
					}
					return *ys.AverageNDVI, nil
				},
			},
		},
	})

	scanType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Scan",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"location":     &graphql.Field{Type: geoPointType},
			"area_m2":      &graphql.Field{Type: graphql.Float},
			"status":       &graphql.Field{Type: graphql.String},
			"series":       &graphql.Field{Type: graphql.NewList(yearlyScoreType)},
			"images":       &graphql.Field{Type: graphql.NewList(graphql.String)},
			"error":        &graphql.Field{Type: graphql.String},
			"created_at":   &graphql.Field{Type: graphql.DateTime},
			"completed_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"scan": &graphql.Field{
				Type:        scanType,
				Description: "Get a vegetation scan by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Scans.Get(p.Context, id)
				},
			},
			"scans": &graphql.Field{
				Type:        graphql.NewList(scanType),
				Description: "List recent vegetation scans",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					offset := p.Args["offset"].(int)
					scans, _, err := deps.Scans.List(p.Context, offset, limit)
					return scans, err
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// GraphQLHandler serves POST /graphql.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)

	return func(c *fiber.Ctx) error {
		if err != nil {
			return errInternal(c, "graphql schema: "+err.Error())
		}

		var req graphqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid graphql request: "+err.Error())
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			OperationName:  req.OperationName,
			VariableValues: req.Variables,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
