package mcpserver

// JourneyFormat describes the journey records returned by the tools so LLM
// consumers can interpret them.
const JourneyFormat = `# railmiles journey format

Every journey returned by the railmiles tools is a JSON object:

` + "```" + `json
{
  "id": "5b0f7c2e-6a55-4c53-9c1e-8c0f7f1d2a10",
  "from": {"full": "London Euston", "shortcode": "EUS"},
  "to": {"full": "Manchester Piccadilly", "shortcode": "MAN"},
  "via": [{"full": "Crewe", "shortcode": "CRE"}],
  "distance": 183.84,
  "date": "2024-03-05T08:30:00Z",
  "returnID": "c7d9a3b4-0f55-4b0e-8f86-1cb6f1a7f6d2"
}
` + "```" + `

## Fields

1. **id** identifies the journey; pass it to get_journey and create_return_journey.
2. **from**, **to** and **via** are stations. The shortcode is the three letter
   CRS code; full is the station name when it is known.
3. **distance** is in miles, measured along the track using the mileages
   published for the services taken.
4. **date** is when the journey was made, in UTC.
5. **returnID**, when present, links an outbound journey and its return. A
   journey can have at most one return.

## Statistics

journey_stats reports count and miles for three windows: lastMonth (since the
same day last month), ytd (since 1 January) and allTime.
`
